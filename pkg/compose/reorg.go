package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// MoveKind distinguishes the operations of a reorganization plan.
type MoveKind string

const (
	// MoveRename relocates a subtree, creating destination parents.
	MoveRename MoveKind = "rename"
	// MoveRemove deletes an emptied wrapper directory.
	MoveRemove MoveKind = "remove"
)

// Move is one step of a reorganization plan.
type Move struct {
	Kind MoveKind
	Src  string
	Dst  string // empty for MoveRemove
}

// PlanReorg computes the moves that bring a variant's source and debug trees
// from the compose tool's internal layout into the canonical layout:
//
//	<variant>/source/tree      -> <variant>/Source
//	<variant>/<arch>/debug/tree -> <variant>/debug/<arch>
//
// Wrappers whose tree was moved out are removed afterwards. Absent source
// paths produce no moves, which makes a re-run on an already reorganized
// tree a no-op.
func PlanReorg(res Result, scheme *layout.Scheme, variant, arch string) []Move {
	var moves []Move

	variantDir := res.VariantDir(variant)
	sourceWrapper := filepath.Join(variantDir, "source")
	if utils.DirExists(sourceWrapper) {
		moves = append(moves,
			Move{Kind: MoveRename, Src: filepath.Join(sourceWrapper, "tree"), Dst: filepath.Join(variantDir, scheme.SourcePath())},
			Move{Kind: MoveRemove, Src: sourceWrapper},
		)
	}

	debugWrapper := filepath.Join(variantDir, arch, "debug")
	if utils.DirExists(debugWrapper) {
		moves = append(moves,
			Move{Kind: MoveRename, Src: filepath.Join(debugWrapper, "tree"), Dst: filepath.Join(variantDir, scheme.DebugPath(arch))},
			Move{Kind: MoveRemove, Src: debugWrapper},
		)
	}

	return moves
}

// Apply executes a reorganization plan in order. A rename whose destination
// already exists (left over from an interrupted earlier run) is skipped with
// a warning; the wrapper removal still happens so the tree converges to the
// canonical layout.
func Apply(moves []Move) error {
	for _, move := range moves {
		switch move.Kind {
		case MoveRename:
			if utils.FileExists(move.Dst) {
				logging.Warn("reorg", "destination already exists, skipping move",
					"src", move.Src, "dst", move.Dst)
				continue
			}
			if !utils.FileExists(move.Src) {
				logging.Warn("reorg", "source tree is absent, skipping move", "src", move.Src)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(move.Dst), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", move.Dst, err)
			}
			logging.Info("reorg", "moving tree", "src", move.Src, "dst", move.Dst)
			if err := os.Rename(move.Src, move.Dst); err != nil {
				return fmt.Errorf("move %s -> %s: %w", move.Src, move.Dst, err)
			}
		case MoveRemove:
			if err := os.RemoveAll(move.Src); err != nil {
				return fmt.Errorf("remove %s: %w", move.Src, err)
			}
		default:
			return fmt.Errorf("unknown move kind %q", move.Kind)
		}
	}
	return nil
}

// Reorganize plans and applies the canonical-layout moves for one
// variant/arch in a single call.
func Reorganize(res Result, scheme *layout.Scheme, variant, arch string) error {
	return Apply(PlanReorg(res, scheme, variant, arch))
}
