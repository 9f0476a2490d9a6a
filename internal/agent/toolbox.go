package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
)

// Retriever is the retrieval step behind rag_search and search_folder.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.SearchRequest) domain.RetrievalResult
}

// Observation is what a tool hands back to the loop. Text is the JSON fed
// to the model; Result is set for retrieval tools.
type Observation struct {
	Text   string
	Status domain.ToolStatus
	Result *domain.RetrievalResult
}

// Toolbox executes typed tool calls. Execute never returns an error: every
// failure becomes an error observation.
type Toolbox struct {
	retriever Retriever
	live      port.LiveSearcher
	logger    *zap.Logger
}

func NewToolbox(retriever Retriever, live port.LiveSearcher, logger *zap.Logger) *Toolbox {
	return &Toolbox{
		retriever: retriever,
		live:      live,
		logger:    logging.OrNop(logger).With(zap.String("component", "toolbox")),
	}
}

func (b *Toolbox) Execute(ctx context.Context, tool Tool) Observation {
	switch t := tool.(type) {
	case RagSearch:
		return b.retrieve(ctx, domain.SearchRequest{Query: t.Query})
	case SearchFolder:
		return b.retrieve(ctx, domain.SearchRequest{Query: t.Query, Folder: t.FolderPattern})
	case LiveCorpusSearch:
		return b.liveSearch(ctx, t.SearchTerm)
	}
	return errorObservation(domain.KindNone, fmt.Sprintf("unsupported tool %T", tool))
}

type snippetView struct {
	SourcePath string  `json:"source_path"`
	Snippet    string  `json:"snippet"`
	Relevance  float64 `json:"relevance"`
}

type partialView struct {
	Status   string        `json:"status"`
	Warning  string        `json:"warning"`
	Results  []snippetView `json:"results"`
	Explored int           `json:"unique_sources"`
}

type listingView struct {
	Status     string               `json:"status"`
	Folders    []domain.FolderGroup `json:"folders"`
	TotalFiles int                  `json:"total_files"`
}

type statusView struct {
	Status      string   `json:"status"`
	Kind        string   `json:"kind,omitempty"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (b *Toolbox) retrieve(ctx context.Context, req domain.SearchRequest) Observation {
	result := b.retriever.Retrieve(ctx, req)
	out := result.Outcome

	var obs Observation
	switch out.Status {
	case domain.OutcomeOK:
		obs = Observation{Text: encodeFound(out), Status: domain.ToolOK}
	case domain.OutcomeEmpty:
		obs = Observation{
			Text: encode(statusView{
				Status:      string(domain.ToolEmpty),
				Message:     out.Message,
				Suggestions: out.Suggestions,
			}),
			Status: domain.ToolEmpty,
		}
	default:
		b.logger.Warn("retrieval failed", zap.String("query", req.Query), zap.Error(out.Err))
		obs = errorObservation(out.ErrorKind(), out.Message)
	}
	obs.Result = &result
	return obs
}

func encodeFound(out domain.SearchOutcome) string {
	if len(out.Listing) > 0 {
		total := 0
		for _, g := range out.Listing {
			total += len(g.Files)
		}
		return encode(listingView{Status: "listing", Folders: out.Listing, TotalFiles: total})
	}

	views := make([]snippetView, len(out.Snippets))
	for i, s := range out.Snippets {
		views[i] = snippetView{SourcePath: s.SourcePath, Snippet: s.Snippet, Relevance: round3(s.Relevance)}
	}
	if out.LowConfidence || out.Warning != "" {
		return encode(partialView{Status: "partial", Warning: out.Warning, Results: views, Explored: out.UniqueSources})
	}
	return encode(views)
}

func (b *Toolbox) liveSearch(ctx context.Context, term string) Observation {
	if b.live == nil {
		return errorObservation(domain.KindProviderUnavailable, "live corpus search is not configured")
	}
	results, err := b.live.SearchLive(ctx, term)
	if err != nil {
		b.logger.Warn("live search failed", zap.String("term", term), zap.Error(err))
		return errorObservation(domain.KindOf(err), err.Error())
	}
	if len(results) == 0 {
		return Observation{
			Text: encode(statusView{
				Status:      string(domain.ToolEmpty),
				Message:     fmt.Sprintf("no documents named like %q", term),
				Suggestions: []string{"try fewer or different words", "use rag_search to search document contents"},
			}),
			Status: domain.ToolEmpty,
		}
	}
	return Observation{Text: encode(results), Status: domain.ToolOK}
}

// errorObservation describes a failure to the model. Rate limits tell it to
// carry on with the evidence it already has.
func errorObservation(kind domain.ErrorKind, message string) Observation {
	status := domain.ToolError
	view := statusView{Status: string(domain.ToolError), Kind: kind.String(), Message: message}
	switch kind {
	case domain.KindRateLimited:
		status = domain.ToolRateLimited
		view.Status = string(domain.ToolRateLimited)
		view.Message = "rate limited, please answer with available information"
	case domain.KindProviderUnavailable:
		view.Suggestions = []string{"answer with the evidence gathered so far", "tell the user the search service is unavailable"}
	default:
		view.Suggestions = []string{"try rephrasing the search"}
	}
	return Observation{Text: encode(view), Status: status}
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(data)
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
