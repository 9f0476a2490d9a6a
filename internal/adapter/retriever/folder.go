package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/port"
)

const maxFolderSuggestions = 5

// listFolder returns the files under the folders matching filter, grouped
// by folder.
func (r *HybridRetriever) listFolder(ctx context.Context, filter *domain.FolderFilter) domain.SearchOutcome {
	items, err := r.store.List(ctx, filter, r.cfg.FolderListingLimit)
	if err != nil {
		return domain.Failed(fmt.Errorf("list folder: %w", err))
	}
	if len(items) == 0 {
		return r.noFolderMatch(ctx, filter.Pattern)
	}

	files := make(map[string]map[string]struct{})
	for _, item := range items {
		c := domain.ChunkFromMetadata(item.ID, item.Text, item.Metadata)
		folder := c.Folder
		if folder == "" {
			folder = "/"
		}
		if files[folder] == nil {
			files[folder] = make(map[string]struct{})
		}
		files[folder][c.SourcePath] = struct{}{}
	}

	groups := make([]domain.FolderGroup, 0, len(files))
	total := 0
	for folder, set := range files {
		g := domain.FolderGroup{Folder: folder, Files: make([]string, 0, len(set))}
		for f := range set {
			g.Files = append(g.Files, f)
		}
		sort.Strings(g.Files)
		total += len(g.Files)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Folder < groups[j].Folder
	})

	r.logger.Debug("folder listing",
		zap.String("pattern", filter.Pattern),
		zap.Int("folders", len(groups)),
		zap.Int("files", total),
	)

	return domain.SearchOutcome{
		Status:        domain.OutcomeOK,
		Listing:       groups,
		UniqueSources: total,
	}
}

// noFolderMatch builds the empty outcome for a folder filter that matched
// nothing, suggesting the known folders closest to pattern.
func (r *HybridRetriever) noFolderMatch(ctx context.Context, pattern string) domain.SearchOutcome {
	msg := fmt.Sprintf("no documents found in folder %q", pattern)

	folders, err := r.knownFolders(ctx)
	if err != nil {
		r.logger.Warn("listing folders for suggestions failed", zap.Error(err))
		return domain.Empty(msg, "check the folder name", "search all documents instead")
	}

	suggestions := closestFolders(pattern, folders, maxFolderSuggestions)
	if len(suggestions) == 0 {
		return domain.Empty(msg, "search all documents instead")
	}
	return domain.Empty(msg, suggestions...)
}

// knownFolders returns every distinct folder in the store. Stores without a
// folder scan are listed in full.
func (r *HybridRetriever) knownFolders(ctx context.Context) ([]string, error) {
	if fl, ok := r.store.(port.FolderLister); ok {
		return fl.Folders(ctx)
	}

	items, err := r.store.List(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var folders []string
	for _, item := range items {
		c := domain.ChunkFromMetadata(item.ID, "", item.Metadata)
		if c.Folder == "" {
			continue
		}
		if _, ok := seen[c.Folder]; ok {
			continue
		}
		seen[c.Folder] = struct{}{}
		folders = append(folders, c.Folder)
	}
	return folders, nil
}

// closestFolders orders folders by character-level similarity to pattern.
func closestFolders(pattern string, folders []string, n int) []string {
	p := strings.ToLower(pattern)
	type scored struct {
		name  string
		score float64
	}
	ranked := make([]scored, 0, len(folders))
	for _, f := range folders {
		lf := strings.ToLower(f)
		s := similarityRatio(strings.Split(p, ""), strings.Split(lf, ""))
		if strings.Contains(lf, p) || strings.Contains(p, lf) {
			s += 1
		}
		ranked = append(ranked, scored{name: f, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.name
	}
	return out
}
