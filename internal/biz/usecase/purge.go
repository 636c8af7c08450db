package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/repo"
)

// PurgeBatchSize is the max number of due purge rules handled per pass
const PurgeBatchSize = 10

// PurgeUsecase removes messages from a chat, on demand or driven by purge rules.
// A purge keeps no state between calls.
type PurgeUsecase struct {
	taskRepo repo.TaskRepo
	gateway  repo.ChannelGateway
	clock    Clock
	logger   *slog.Logger
}

// NewPurgeUsecase creates a new purge usecase
func NewPurgeUsecase(taskRepo repo.TaskRepo, gateway repo.ChannelGateway, clock Clock, logger *slog.Logger) *PurgeUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeUsecase{
		taskRepo: taskRepo,
		gateway:  gateway,
		clock:    clockOrDefault(clock),
		logger:   logger.With("component", "Purge"),
	}
}

// PurgeChannel runs a one-shot purge without persisting a rule
func (uc *PurgeUsecase) PurgeChannel(ctx context.Context, channelID, mode string, scanLimit int) (domain.PurgeResult, error) {
	m, err := domain.ParsePurgeMode(mode)
	if err != nil {
		return domain.PurgeResult{}, err
	}
	ch, err := uc.gateway.ResolveChannel(ctx, channelID)
	if err != nil {
		return domain.PurgeResult{}, fmt.Errorf("failed to resolve channel %s: %w", channelID, err)
	}
	return uc.Purge(ctx, ch, m, domain.ClampScanLimit(scanLimit, domain.DefaultManualScanLimit))
}

// Purge examines at most scanLimit of the newest items in ch, and deletes the ones
// matching mode that are still young enough to be removed.
//
// Deletions are not rolled back: on a chunk failure the result still counts what
// was removed, and the returned error joins every failed chunk.
func (uc *PurgeUsecase) Purge(ctx context.Context, ch *domain.Channel, mode domain.PurgeMode, scanLimit int) (domain.PurgeResult, error) {
	var result domain.PurgeResult
	if !mode.Valid() {
		return result, domain.ErrInvalidMode
	}
	scanLimit = domain.ClampScanLimit(scanLimit, domain.DefaultManualScanLimit)

	items, err := uc.collect(ctx, ch, scanLimit)
	result.Scanned = len(items)
	if err != nil {
		return result, fmt.Errorf("failed to page channel %s: %w", ch.ID, err)
	}

	matches := uc.classify(ctx, ch, mode, items)
	result.Matched = len(matches)

	eligible, tooOld := partitionByAge(matches, uc.clock.Now())
	result.TooOld = tooOld

	deleted, err := uc.removeInChunks(ctx, ch, eligible)
	result.Deleted = deleted

	uc.logger.Info("purge finished",
		"channel", ch.ID, "mode", mode,
		"scanned", result.Scanned, "matched", result.Matched,
		"deleted", result.Deleted, "too_old", result.TooOld)
	return result, err
}

// collect pages backward from the newest item until limit items or the end of history
func (uc *PurgeUsecase) collect(ctx context.Context, ch *domain.Channel, limit int) ([]domain.ChannelItem, error) {
	items := make([]domain.ChannelItem, 0, limit)
	before := ""
	for len(items) < limit {
		pageSize := limit - len(items)
		if pageSize > domain.PurgePageLimit {
			pageSize = domain.PurgePageLimit
		}

		page, next, err := uc.gateway.PageRecent(ctx, ch, pageSize, before)
		if err != nil {
			return items, err
		}
		if len(page) == 0 {
			break
		}
		if len(page) > pageSize {
			page = page[:pageSize]
		}
		items = append(items, page...)

		if next == "" {
			break
		}
		before = next
	}
	return items, nil
}

func (uc *PurgeUsecase) classify(ctx context.Context, ch *domain.Channel, mode domain.PurgeMode, items []domain.ChannelItem) []domain.ChannelItem {
	var matches []domain.ChannelItem
	privileged := make(map[string]bool) // per pass only

	for _, item := range items {
		switch mode {
		case domain.PurgeModeAll:
			matches = append(matches, item)
		case domain.PurgeModeMedia:
			if item.HasAttachments {
				matches = append(matches, item)
			}
		case domain.PurgeModeNonAdmin:
			if !uc.isPrivileged(ctx, ch, item.AuthorID, privileged) {
				matches = append(matches, item)
			}
		}
	}
	return matches
}

// isPrivileged resolves an author once per pass. A failed lookup counts as not privileged.
func (uc *PurgeUsecase) isPrivileged(ctx context.Context, ch *domain.Channel, authorID string, cache map[string]bool) bool {
	if authorID == "" {
		return false
	}
	if v, ok := cache[authorID]; ok {
		return v
	}

	v, err := uc.gateway.IsPrivileged(ctx, ch, authorID)
	if err != nil {
		uc.logger.Warn("privilege lookup failed", "channel", ch.ID, "author", authorID, "error", err)
		v = false
	}
	cache[authorID] = v
	return v
}

// partitionByAge splits matches into removable ids and a count of items past the platform age limit
func partitionByAge(matches []domain.ChannelItem, now time.Time) ([]string, int) {
	var eligible []string
	tooOld := 0
	for i := range matches {
		if matches[i].Age(now) < domain.PurgeAgeLimit {
			eligible = append(eligible, matches[i].ID)
		} else {
			tooOld++
		}
	}
	return eligible, tooOld
}

func (uc *PurgeUsecase) removeInChunks(ctx context.Context, ch *domain.Channel, ids []string) (int, error) {
	deleted := 0
	var errs []error
	for start := 0; start < len(ids); start += domain.BulkRemoveLimit {
		end := start + domain.BulkRemoveLimit
		if end > len(ids) {
			end = len(ids)
		}

		n, err := uc.gateway.BulkRemove(ctx, ch, ids[start:end])
		deleted += n
		if err != nil {
			uc.logger.Warn("bulk remove chunk failed", "channel", ch.ID, "offset", start, "size", end-start, "error", err)
			errs = append(errs, fmt.Errorf("failed to remove chunk at %d: %w", start, err))
		}
	}
	return deleted, errors.Join(errs...)
}

// RunDue runs one batch of due purge rules, earliest first.
// Only a failure to query the store is returned; rule failures are recorded on the rule.
func (uc *PurgeUsecase) RunDue(ctx context.Context) (processed, failed int, err error) {
	rules, err := uc.taskRepo.ListDuePurgeRules(ctx, uc.clock.Now(), PurgeBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list due purge rules: %w", err)
	}

	for _, rule := range rules {
		if err := uc.RunRule(ctx, rule); err != nil {
			failed++
		}
		processed++
	}
	return processed, failed, nil
}

// RunRule executes a purge rule and reschedules it one interval after the attempt
func (uc *PurgeUsecase) RunRule(ctx context.Context, rule *domain.PurgeRule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while purging: %v", r)
			uc.recordFailure(ctx, rule, err)
		}
	}()

	_, err = uc.runRule(ctx, rule)
	if err != nil {
		uc.recordFailure(ctx, rule, err)
		return err
	}

	next := rule.NextRunFrom(uc.clock.Now())
	if err := uc.taskRepo.AdvancePurgeRule(ctx, rule.ID, next); err != nil {
		uc.logger.Error("purged but failed to advance rule", "id", rule.ID, "error", err)
		return fmt.Errorf("failed to advance purge rule %d: %w", rule.ID, err)
	}
	return nil
}

func (uc *PurgeUsecase) runRule(ctx context.Context, rule *domain.PurgeRule) (domain.PurgeResult, error) {
	ch, err := uc.gateway.ResolveChannel(ctx, rule.ChannelID)
	if err != nil {
		return domain.PurgeResult{}, fmt.Errorf("failed to resolve channel %s: %w", rule.ChannelID, err)
	}
	return uc.Purge(ctx, ch, rule.Mode, domain.ClampScanLimit(rule.ScanLimit, domain.DefaultRuleScanLimit))
}

func (uc *PurgeUsecase) recordFailure(ctx context.Context, rule *domain.PurgeRule, cause error) {
	next := rule.NextRunFrom(uc.clock.Now())
	uc.logger.Warn("purge rule failed", "id", rule.ID, "channel", rule.ChannelID, "next_run", next.Unix(), "error", cause)
	if err := uc.taskRepo.RecordPurgeRuleError(ctx, rule.ID, next, domain.TruncateError(cause)); err != nil {
		uc.logger.Error("failed to record purge error", "id", rule.ID, "error", err)
	}
}
