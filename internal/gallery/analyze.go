package gallery

import (
	"context"
	"fmt"
	"sync"

	"gallery-go/internal/quality"
)

// AnalyzeMode selects the images of a bulk analysis run.
type AnalyzeMode string

const (
	AnalyzeSelected AnalyzeMode = "selected"
	AnalyzeAll      AnalyzeMode = "all"
	AnalyzeUnscored AnalyzeMode = "unscored"
)

// Server-side batch size sent with remote analysis requests.
const remoteAnalyzeBatchSize = 50

// AnalyzeRequest describes one bulk analysis run.
type AnalyzeRequest struct {
	Mode       AnalyzeMode
	IDs        []string // for AnalyzeSelected
	MaxWorkers int
	Logger     Logger // nil discards
}

// AnalyzeProgress is reported after each image.
type AnalyzeProgress struct {
	Done  int
	Total int
	ID    string
	Score int
	Err   error
}

// AnalyzeSummary is the result of a bulk run. The JSON names match the
// server's analyze-quality response.
type AnalyzeSummary struct {
	Total      int  `json:"total"`
	Analyzed   int  `json:"analyzed"`
	Failed     int  `json:"failed"`
	Skipped    int  `json:"skipped"`
	LowQuality int  `json:"low_quality_count"`
	Stopped    bool `json:"stopped"`
}

type analyzeResult struct {
	id  string
	res *quality.Result
	err error
}

// AnalyzeImages scores the requested images and saves each score through
// store as soon as it is computed, so a cancelled run keeps its progress.
// Cancelling ctx stops dispatching new images; images already being
// analyzed finish and are saved. Per-image failures are counted, never
// returned. Stores implementing RemoteAnalyzer run the analysis server-side.
// A nil analyzer uses quality.DefaultWeights.
func AnalyzeImages(ctx context.Context, store ImageStore, analyzer *quality.Analyzer, req AnalyzeRequest, progress func(AnalyzeProgress)) (*AnalyzeSummary, error) {
	if req.Mode == AnalyzeSelected && len(req.IDs) == 0 {
		return nil, ErrNothingSelected
	}
	if req.Logger == nil {
		req.Logger = NewNopLogger()
	}
	if ra, ok := store.(RemoteAnalyzer); ok {
		return analyzeRemote(ctx, ra, req)
	}

	if analyzer == nil {
		analyzer = quality.NewAnalyzer(quality.DefaultWeights)
	}

	summary := &AnalyzeSummary{}
	targets, err := analysisTargets(ctx, store, req, summary)
	if err != nil {
		return nil, err
	}

	workers := req.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	work := context.WithoutCancel(ctx)

	jobs := make(chan ImageRecord)
	results := make(chan analyzeResult)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- analyzeOne(work, store, analyzer, rec)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, rec := range targets {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	done := summary.Failed
	for r := range results {
		done++
		p := AnalyzeProgress{Done: done, Total: summary.Total, ID: r.id, Err: r.err}
		if r.err != nil {
			summary.Failed++
		} else {
			summary.Analyzed++
			p.Score = r.res.Score
			if r.res.LowQuality() {
				summary.LowQuality++
			}
		}
		if progress != nil {
			progress(p)
		}
	}

	summary.Stopped = ctx.Err() != nil && summary.Analyzed+summary.Failed+summary.Skipped < summary.Total
	return summary, nil
}

func analyzeOne(ctx context.Context, store ImageStore, analyzer *quality.Analyzer, rec ImageRecord) analyzeResult {
	rc, err := store.OpenImage(ctx, rec.ID)
	if err != nil {
		return analyzeResult{id: rec.ID, err: err}
	}
	res, err := analyzer.Analyze(rc)
	rc.Close()
	if err != nil {
		return analyzeResult{id: rec.ID, err: err}
	}

	update := QualityUpdate{
		Score:           float64(res.Score),
		Issues:          res.Issues,
		BlurScore:       res.BlurScore,
		BrightnessScore: res.BrightnessScore,
	}
	if err := store.SaveQuality(ctx, rec.ID, update); err != nil {
		return analyzeResult{id: rec.ID, err: fmt.Errorf("saving score: %w", err)}
	}
	return analyzeResult{id: rec.ID, res: res}
}

// analysisTargets resolves the images to analyze and fills the Total,
// Skipped and Failed counts known before any analysis runs.
func analysisTargets(ctx context.Context, store ImageStore, req AnalyzeRequest, summary *AnalyzeSummary) ([]ImageRecord, error) {
	var targets []ImageRecord

	switch req.Mode {
	case AnalyzeSelected:
		for _, id := range req.IDs {
			rec, err := store.GetImage(ctx, id)
			if err != nil {
				summary.Failed++
				continue
			}
			targets = append(targets, *rec)
		}
		summary.Total = len(req.IDs)
		return targets, nil

	case AnalyzeAll, AnalyzeUnscored:
		all, err := ListAllImages(ctx, store, ImageFilter{})
		if err != nil {
			return nil, err
		}
		for _, rec := range all {
			if req.Mode == AnalyzeUnscored && rec.Scored() {
				summary.Skipped++
				continue
			}
			targets = append(targets, rec)
		}
		summary.Total = len(all)
		return targets, nil

	default:
		return nil, fmt.Errorf("unknown analysis mode: %q", req.Mode)
	}
}

// ListAllImages pages through every record matching f.
func ListAllImages(ctx context.Context, store ImageStore, f ImageFilter) ([]ImageRecord, error) {
	var all []ImageRecord
	q := ImageQuery{Filter: f, SortBy: DefaultSortBy, SortOrder: DefaultSortOrder, Page: 1, PageSize: MaxPageSize}
	for {
		page, err := store.ListImages(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("listing images: %w", err)
		}
		all = append(all, page.Images...)
		if len(page.Images) == 0 || page.Page >= page.TotalPages {
			return all, nil
		}
		q.Page++
	}
}

// analyzeRemote starts a server-side run. The request itself is not
// cancelled with ctx; instead cancelling ctx asks the server to stop, and
// the server returns the partial summary.
func analyzeRemote(ctx context.Context, ra RemoteAnalyzer, req AnalyzeRequest) (*AnalyzeSummary, error) {
	body := RemoteAnalyzeRequest{
		UpdateMetadata: true,
		BatchSize:      remoteAnalyzeBatchSize,
		SkipAnalyzed:   req.Mode == AnalyzeUnscored,
		MaxWorkers:     req.MaxWorkers,
	}
	if req.Mode == AnalyzeSelected {
		body.ImageIDs = req.IDs
	}

	stop := context.AfterFunc(ctx, func() {
		if err := ra.StopAnalysis(context.Background()); err != nil {
			req.Logger.Warn("stopping remote analysis failed", "error", err)
		}
	})
	defer stop()

	summary, err := ra.AnalyzeRemote(context.WithoutCancel(ctx), body)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		summary.Stopped = true
	}
	return summary, nil
}
