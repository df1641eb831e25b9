package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"github.com/lychee-technology/assetio/internal/plugins"
	"github.com/spf13/cobra"
)

func newResolveCmd(a *app) *cobra.Command {
	var traits []string
	cmd := &cobra.Command{
		Use:   "resolve <ref>...",
		Short: "Resolve trait properties for entities",
		Long: `Resolve fetches the properties of the requested traits for each entity.

Example:
  assetctl resolve mem:///shots/sh010/plate --traits openassetio-mediacreation:content.LocatableContent
  assetctl resolve mem:///a mem:///b --traits ... --policy stream`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := a.accessOr(dispatch.OpResolve, assetio.AccessRead)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			refs := assetio.EntityReferences(args...)
			traitSet := assetio.NewTraitSet(traits...)
			return run(a, cmd.OutOrStdout(), batch[*assetio.TraitsData]{
				labels: args,
				throw: func() ([]*assetio.TraitsData, error) {
					return a.manager.Resolve(ctx, refs, traitSet, access, a.actx)
				},
				collect: func() ([]assetio.Outcome[*assetio.TraitsData], error) {
					return a.manager.ResolveResults(ctx, refs, traitSet, access, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[*assetio.TraitsData], fail assetio.BatchElementErrorCallback) error {
					return a.manager.ResolveWithCallbacks(ctx, refs, traitSet, access, a.actx, ok, fail)
				},
				format: asIs[*assetio.TraitsData],
			})
		},
	}
	cmd.Flags().StringSliceVar(&traits, "traits", nil, "trait IDs to resolve (comma separated)")
	_ = cmd.MarkFlagRequired("traits")
	return cmd
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <ref>...",
		Short: "Check whether entities exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			refs := assetio.EntityReferences(args...)
			return run(a, cmd.OutOrStdout(), batch[bool]{
				labels: args,
				throw: func() ([]bool, error) {
					return a.manager.EntityExists(ctx, refs, a.actx)
				},
				collect: func() ([]assetio.Outcome[bool], error) {
					return a.manager.EntityExistsResults(ctx, refs, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[bool], fail assetio.BatchElementErrorCallback) error {
					return a.manager.EntityExistsWithCallbacks(ctx, refs, a.actx, ok, fail)
				},
				format: asIs[bool],
			})
		},
	}
}

func newTraitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "traits <ref>...",
		Short: "List the traits of entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := a.accessOr(dispatch.OpEntityTraits, assetio.AccessRead)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)
			refs := assetio.EntityReferences(args...)
			return run(a, cmd.OutOrStdout(), batch[assetio.TraitSet]{
				labels: args,
				throw: func() ([]assetio.TraitSet, error) {
					return a.manager.EntityTraits(ctx, refs, access, a.actx)
				},
				collect: func() ([]assetio.Outcome[assetio.TraitSet], error) {
					return a.manager.EntityTraitsResults(ctx, refs, access, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[assetio.TraitSet], fail assetio.BatchElementErrorCallback) error {
					return a.manager.EntityTraitsWithCallbacks(ctx, refs, access, a.actx, ok, fail)
				},
				format: func(ts assetio.TraitSet) (any, error) {
					return strings.Join(ts.Sorted(), ","), nil
				},
			})
		},
	}
}

func newRelatedCmd(a *app) *cobra.Command {
	var (
		relationship string
		resultTraits []string
		pageSize     int
	)
	cmd := &cobra.Command{
		Use:   "related <ref>...",
		Short: "List entities related to each entity",
		Long: `Related lists the entities linked to each given entity by a relationship.
The relationship is either comma separated trait IDs or a JSON object of
trait IDs to properties.

Example:
  assetctl related mem:///shots/sh010/comp --relationship openassetio-mediacreation:relationship.DependsOn
  assetctl related mem:///shots/sh010/comp --relationship '{"openassetio-mediacreation:relationship.DependsOn":{"role":"background"}}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := a.accessOr(dispatch.OpGetWithRelationship, assetio.AccessRead)
			if err != nil {
				return err
			}
			rel, err := parseTraitsArg(relationship)
			if err != nil {
				return fmt.Errorf("parse relationship: %w", err)
			}
			var resultTraitSet assetio.TraitSet
			if len(resultTraits) > 0 {
				resultTraitSet = assetio.NewTraitSet(resultTraits...)
			}
			ctx := cmdContext(cmd)
			refs := assetio.EntityReferences(args...)
			return run(a, cmd.OutOrStdout(), batch[assetio.EntityReferencePager]{
				labels: args,
				throw: func() ([]assetio.EntityReferencePager, error) {
					return a.manager.GetWithRelationship(ctx, refs, rel, resultTraitSet, pageSize, access, a.actx)
				},
				collect: func() ([]assetio.Outcome[assetio.EntityReferencePager], error) {
					return a.manager.GetWithRelationshipResults(ctx, refs, rel, resultTraitSet, pageSize, access, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[assetio.EntityReferencePager], fail assetio.BatchElementErrorCallback) error {
					return a.manager.GetWithRelationshipWithCallbacks(ctx, refs, rel, resultTraitSet, pageSize, access, a.actx, ok, fail)
				},
				format: func(pager assetio.EntityReferencePager) (any, error) {
					return drain(ctx, pager)
				},
			})
		},
	}
	cmd.Flags().StringVar(&relationship, "relationship", "", "relationship trait IDs or JSON traits data")
	cmd.Flags().StringSliceVar(&resultTraits, "result-traits", nil, "only list entities with these traits")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "references fetched per page")
	_ = cmd.MarkFlagRequired("relationship")
	return cmd
}

func drain(ctx context.Context, pager assetio.EntityReferencePager) (any, error) {
	refs, err := plugins.CollectPages(ctx, pager)
	if err != nil {
		return nil, fmt.Errorf("page related entities: %w", err)
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.String()
	}
	return strings.Join(out, ","), nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var data []string
	cmd := &cobra.Command{
		Use:   "register <ref>...",
		Short: "Publish traits data to entities",
		Long: `Register publishes traits data to each entity and prints the reference of
the registered version. Pass --data once to publish the same data to every
entity, or once per entity. Data is a JSON object of trait IDs to properties,
or @path to read it from a file.

Example:
  assetctl register mem:///shots/sh010/comp --data '{"openassetio-mediacreation:content.LocatableContent":{"location":"file:///comp.exr"}}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := a.accessOr(dispatch.OpRegister, assetio.AccessWrite)
			if err != nil {
				return err
			}
			if len(data) != 1 && len(data) != len(args) {
				return fmt.Errorf("got %d --data values for %d references", len(data), len(args))
			}
			datas := make([]*assetio.TraitsData, len(args))
			for i := range args {
				raw := data[0]
				if len(data) > 1 {
					raw = data[i]
				}
				if datas[i], err = parseTraitsArg(raw); err != nil {
					return fmt.Errorf("parse data %d: %w", i, err)
				}
			}
			ctx := cmdContext(cmd)
			refs := assetio.EntityReferences(args...)
			return run(a, cmd.OutOrStdout(), batch[assetio.EntityReference]{
				labels: args,
				throw: func() ([]assetio.EntityReference, error) {
					return a.manager.Register(ctx, refs, datas, access, a.actx)
				},
				collect: func() ([]assetio.Outcome[assetio.EntityReference], error) {
					return a.manager.RegisterResults(ctx, refs, datas, access, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[assetio.EntityReference], fail assetio.BatchElementErrorCallback) error {
					return a.manager.RegisterWithCallbacks(ctx, refs, datas, access, a.actx, ok, fail)
				},
				format: asIs[assetio.EntityReference],
			})
		},
	}
	cmd.Flags().StringArrayVar(&data, "data", nil, "traits data as JSON or @file")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newDefaultsCmd(a *app) *cobra.Command {
	var traitSets []string
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show default entity references for trait sets",
		Long: `Defaults prints the manager's default entity for each trait set, or "-"
when it has none. Repeat --traits for several trait sets.

Example:
  assetctl defaults --traits openassetio-mediacreation:content.LocatableContent --access write`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			access, err := a.accessOr(dispatch.OpDefaultEntityReference, assetio.AccessRead)
			if err != nil {
				return err
			}
			sets := make([]assetio.TraitSet, len(traitSets))
			for i, s := range traitSets {
				sets[i] = assetio.NewTraitSet(strings.Split(s, ",")...)
			}
			ctx := cmdContext(cmd)
			return run(a, cmd.OutOrStdout(), batch[*assetio.EntityReference]{
				labels: traitSets,
				throw: func() ([]*assetio.EntityReference, error) {
					return a.manager.DefaultEntityReference(ctx, sets, access, a.actx)
				},
				collect: func() ([]assetio.Outcome[*assetio.EntityReference], error) {
					return a.manager.DefaultEntityReferenceResults(ctx, sets, access, a.actx)
				},
				stream: func(ok assetio.SuccessCallback[*assetio.EntityReference], fail assetio.BatchElementErrorCallback) error {
					return a.manager.DefaultEntityReferenceWithCallbacks(ctx, sets, access, a.actx, ok, fail)
				},
				format: func(ref *assetio.EntityReference) (any, error) {
					if ref == nil {
						return "-", nil
					}
					return ref.String(), nil
				},
			})
		},
	}
	cmd.Flags().StringArrayVar(&traitSets, "traits", nil, "comma separated trait IDs of one trait set (repeatable)")
	_ = cmd.MarkFlagRequired("traits")
	return cmd
}

// parseTraitsArg reads traits data from a JSON object, an @file holding one,
// or a comma separated list of trait IDs without properties.
func parseTraitsArg(arg string) (*assetio.TraitsData, error) {
	arg = strings.TrimSpace(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		arg = strings.TrimSpace(string(raw))
	}
	if strings.HasPrefix(arg, "{") {
		var m map[string]map[string]any
		if err := json.Unmarshal([]byte(arg), &m); err != nil {
			return nil, err
		}
		return assetio.TraitsDataFromMap(m)
	}
	var ids []string
	for _, id := range strings.Split(arg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no traits given")
	}
	return assetio.NewTraitsData(assetio.NewTraitSet(ids...)), nil
}
