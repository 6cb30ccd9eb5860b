// Package cleanup implements the Cleanup Scheduler (§4.6): classifying and
// reclaiming isolation environments that are merged, stale, or whose
// working directory has disappeared.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/archon/internal/commands"
	"github.com/nextlevelbuilder/archon/internal/isolation"
	"github.com/nextlevelbuilder/archon/internal/store"
)

const telegramPlatform = "telegram"

type category int

const (
	categoryProtected category = iota
	categoryMissing
	categoryMerged
	categoryStale
	categoryKeep
)

// Scheduler implements commands.CleanupRunner and isolation.MergedCleaner,
// so it plugs into both the Command Handler and the Isolation Manager
// without either depending on this package's concrete type.
type Scheduler struct {
	Stores             *store.Stores
	StaleThresholdDays int
}

// NewScheduler constructs a Cleanup Scheduler. staleThresholdDays <= 0 uses
// the spec default of 14.
func NewScheduler(stores *store.Stores, staleThresholdDays int) *Scheduler {
	if staleThresholdDays <= 0 {
		staleThresholdDays = 14
	}
	return &Scheduler{Stores: stores, StaleThresholdDays: staleThresholdDays}
}

func (s *Scheduler) classify(ctx context.Context, env *store.IsolationEnvironment, canonicalRepoPath, mainBranch string) (category, error) {
	if !isolation.IsValidWorktree(ctx, canonicalRepoPath, env.WorkingPath) {
		return categoryMissing, nil
	}

	refs, err := s.Stores.Envs.ReferencingConversations(ctx, env.ID)
	if err != nil {
		return categoryProtected, fmt.Errorf("load referencing conversations: %w", err)
	}
	if len(refs) > 0 {
		return categoryProtected, nil
	}

	if isolation.HasUncommittedChanges(ctx, env.WorkingPath) {
		return categoryProtected, nil
	}

	merged, err := isolation.MergedBranches(ctx, canonicalRepoPath, mainBranch)
	if err != nil {
		return categoryProtected, fmt.Errorf("list merged branches: %w", err)
	}
	for _, b := range merged {
		if b == env.BranchName {
			return categoryMerged, nil
		}
	}

	if env.CreatedByPlatform == telegramPlatform {
		// Telegram exception (§4.6): staleness never applies, only merged
		// cleanup does.
		return categoryKeep, nil
	}

	stale, err := s.isStale(ctx, env)
	if err != nil {
		return categoryProtected, err
	}
	if stale {
		return categoryStale, nil
	}
	return categoryKeep, nil
}

func (s *Scheduler) isStale(ctx context.Context, env *store.IsolationEnvironment) (bool, error) {
	staleEnvs, err := s.Stores.Envs.FindStaleEnvironments(ctx, s.StaleThresholdDays)
	if err != nil {
		return false, fmt.Errorf("find stale environments: %w", err)
	}
	for _, e := range staleEnvs {
		if e.ID == env.ID {
			return true, nil
		}
	}
	return false, nil
}

// runCycle applies the removal preconditions (§4.6) over every active
// environment of codebaseID whose classification is in allowed, producing
// the {removed, skipped, errors} output contract.
func (s *Scheduler) runCycle(ctx context.Context, codebaseID, canonicalRepoPath string, allowed map[category]bool) (commands.CleanupReport, error) {
	report := commands.CleanupReport{}

	envs, err := s.Stores.Envs.ListActive(ctx, codebaseID)
	if err != nil {
		return report, fmt.Errorf("list active environments: %w", err)
	}
	if len(envs) == 0 {
		return report, nil
	}

	mainBranch := isolation.MainBranch(ctx, canonicalRepoPath)

	for _, env := range envs {
		cat, err := s.classify(ctx, env, canonicalRepoPath, mainBranch)
		if err != nil {
			report.Errors = append(report.Errors, commands.CleanupError{ID: env.ID, Error: err.Error()})
			continue
		}
		if !allowed[cat] {
			report.Skipped = append(report.Skipped, commands.CleanupSkip{ID: env.ID, Reason: skipReason(cat)})
			continue
		}

		if err := s.remove(ctx, env, canonicalRepoPath, cat); err != nil {
			report.Errors = append(report.Errors, commands.CleanupError{ID: env.ID, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, env.ID)
	}

	return report, nil
}

func skipReason(cat category) string {
	switch cat {
	case categoryProtected:
		return "protected: uncommitted changes or still referenced"
	default:
		return "not a removal candidate"
	}
}

func (s *Scheduler) remove(ctx context.Context, env *store.IsolationEnvironment, canonicalRepoPath string, cat category) error {
	mgr := isolation.NewManager(s.Stores.Envs, 0, s)
	force := cat == categoryMissing
	if err := mgr.Destroy(ctx, env, isolation.DestroyParams{
		Force:             force,
		BranchName:        env.BranchName,
		CanonicalRepoPath: canonicalRepoPath,
	}); err != nil {
		return fmt.Errorf("destroy environment: %w", err)
	}

	convs, err := s.Stores.Envs.ReferencingConversations(ctx, env.ID)
	if err != nil {
		slog.Warn("failed to load referencing conversations after destroy", "env_id", env.ID, "error", err)
		return nil
	}
	for _, convID := range convs {
		if err := s.Stores.Conversations.Update(ctx, convID, store.ConversationPatch{ClearEnv: true}); err != nil {
			slog.Warn("failed to clear conversation env reference", "conversation_id", convID, "env_id", env.ID, "error", err)
		}
	}
	return nil
}

// RunMerged implements commands.CleanupRunner: "/worktree cleanup merged".
func (s *Scheduler) RunMerged(ctx context.Context, codebaseID, canonicalRepoPath string) (commands.CleanupReport, error) {
	return s.runCycle(ctx, codebaseID, canonicalRepoPath, map[category]bool{
		categoryMerged:  true,
		categoryMissing: true,
	})
}

// RunStale implements commands.CleanupRunner: "/worktree cleanup stale".
func (s *Scheduler) RunStale(ctx context.Context, codebaseID, canonicalRepoPath string) (commands.CleanupReport, error) {
	return s.runCycle(ctx, codebaseID, canonicalRepoPath, map[category]bool{
		categoryStale:   true,
		categoryMerged:  true,
		categoryMissing: true,
	})
}

// CleanupMerged implements isolation.MergedCleaner: Enforce-limit's
// Cleanup-to-make-room call (§4.3).
func (s *Scheduler) CleanupMerged(ctx context.Context, codebaseID, canonicalRepoPath string) (int, error) {
	report, err := s.RunMerged(ctx, codebaseID, canonicalRepoPath)
	return len(report.Removed), err
}

// RunFullCycle implements the periodic trigger (§4.6): a full merged+stale
// cycle over every active environment of every known codebase.
func (s *Scheduler) RunFullCycle(ctx context.Context) (commands.CleanupReport, error) {
	codebases, err := s.Stores.Codebases.List(ctx)
	if err != nil {
		return commands.CleanupReport{}, fmt.Errorf("list codebases: %w", err)
	}

	total := commands.CleanupReport{}
	for _, cb := range codebases {
		report, err := s.RunStale(ctx, cb.ID, cb.DefaultCwd)
		if err != nil {
			total.Errors = append(total.Errors, commands.CleanupError{ID: cb.ID, Error: err.Error()})
			continue
		}
		total.Removed = append(total.Removed, report.Removed...)
		total.Skipped = append(total.Skipped, report.Skipped...)
		total.Errors = append(total.Errors, report.Errors...)
	}
	return total, nil
}
