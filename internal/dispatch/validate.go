package dispatch

import (
	"fmt"
	"slices"

	"github.com/lychee-technology/assetio"
)

// Operation names, used for errors, logs, metrics and span names.
const (
	OpResolve                = "resolve"
	OpEntityExists           = "entityExists"
	OpEntityTraits           = "entityTraits"
	OpGetWithRelationship    = "getWithRelationship"
	OpGetWithRelationships   = "getWithRelationships"
	OpPreflight              = "preflight"
	OpRegister               = "register"
	OpDefaultEntityReference = "defaultEntityReference"
	OpManagementPolicy       = "managementPolicy"
)

var permittedAccess = map[string][]assetio.Access{
	OpResolve:                {assetio.AccessRead, assetio.AccessManagerDriven},
	OpEntityTraits:           {assetio.AccessRead, assetio.AccessWrite},
	OpGetWithRelationship:    {assetio.AccessRead, assetio.AccessWrite, assetio.AccessCreateRelated},
	OpGetWithRelationships:   {assetio.AccessRead, assetio.AccessWrite, assetio.AccessCreateRelated},
	OpPreflight:              {assetio.AccessWrite, assetio.AccessCreateRelated},
	OpRegister:               {assetio.AccessWrite, assetio.AccessCreateRelated},
	OpDefaultEntityReference: {assetio.AccessRead, assetio.AccessWrite, assetio.AccessCreateRelated},
	OpManagementPolicy: {assetio.AccessRead, assetio.AccessWrite, assetio.AccessCreateRelated,
		assetio.AccessRequired, assetio.AccessManagerDriven},
}

// PermittedAccess lists the access modes an operation accepts
func PermittedAccess(operation string) []assetio.Access {
	return slices.Clone(permittedAccess[operation])
}

// CheckAccess rejects an access mode the operation does not accept
func CheckAccess(operation string, access assetio.Access) error {
	if slices.Contains(permittedAccess[operation], access) {
		return nil
	}
	return assetio.NewInputValidationError(assetio.ErrCodeInvalidAccess,
		fmt.Sprintf("access %s is not valid for %s", access, operation)).
		WithOperation(operation).
		WithDetail("access", access.String())
}

// CheckContext rejects a nil calling context
func CheckContext(operation string, actx *assetio.Context) error {
	if actx == nil {
		return assetio.NewInputValidationError(assetio.ErrCodeNilContext, "context cannot be nil").
			WithOperation(operation)
	}
	return nil
}

// CheckLengths rejects per-element inputs that do not pair 1:1 with refs
func CheckLengths(operation, what string, refs, inputs int) error {
	if refs != inputs {
		return assetio.NewInputValidationError(assetio.ErrCodeLengthMismatch,
			fmt.Sprintf("%d entity references but %d %s", refs, inputs, what)).
			WithOperation(operation).
			WithDetail("references", refs).
			WithDetail(what, inputs)
	}
	return nil
}

// CheckTraitsData rejects a batch containing a nil TraitsData element
func CheckTraitsData(operation string, datas []*assetio.TraitsData) error {
	for i, d := range datas {
		if d == nil {
			return assetio.NewInputValidationError(assetio.ErrCodeNilTraitsData, "traits data cannot be nil").
				WithOperation(operation).
				WithDetail("index", i)
		}
	}
	return nil
}

// CheckPageSize rejects a non-positive relationship page size
func CheckPageSize(operation string, pageSize int) error {
	if pageSize <= 0 {
		return assetio.NewInputValidationError(assetio.ErrCodeInvalidPageSize,
			fmt.Sprintf("page size must be greater than 0, got %d", pageSize)).
			WithOperation(operation)
	}
	return nil
}

// FirstError returns the first non-nil error, for composing Call.Validate
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
