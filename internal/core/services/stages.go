package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// indexBatchSize is the number of entries written per index unit.
const indexBatchSize = 64

// stageRun executes the units of the job's current stage.
type stageRun struct {
	o      *Orchestrator
	job    *domain.Job
	doc    *domain.Document
	budget int
	units  int
}

// execute runs the current stage. It reports done=false when the unit
// budget ran out before the stage finished.
func (r *stageRun) execute(ctx context.Context) (bool, error) {
	switch r.job.Stage {
	case domain.StageRasterizing:
		return r.rasterize(ctx)
	case domain.StageClassifying:
		return r.classify(ctx)
	case domain.StageExtracting:
		return r.extract(ctx)
	case domain.StageChunking:
		return r.chunk(ctx)
	case domain.StageEmbedding:
		return r.embed(ctx)
	case domain.StageIndexing:
		return r.index(ctx)
	default:
		return false, fmt.Errorf("%w: cannot advance stage %s", domain.ErrInvalidInput, r.job.Stage)
	}
}

// checkpoint fails with errCancelled if the job was cancelled since it was
// loaded, and renews the lease for the next unit.
func (r *stageRun) checkpoint(ctx context.Context) error {
	stored, err := r.o.deps.Jobs.Get(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if stored.IsTerminal() || stored.CancelRequested {
		return errCancelled
	}
	return r.o.renew(ctx, r.job.ID)
}

// unitDone records progress after a unit and reports whether the budget is spent.
func (r *stageRun) unitDone(ctx context.Context, done, total int, msg string) (bool, error) {
	r.job.SetProgress(done, total, msg)
	if err := r.o.commit(ctx, r.job); err != nil {
		return false, err
	}
	r.units++
	return r.budget > 0 && r.units >= r.budget, nil
}

// retry runs op under the stage's retry policy and counts retries on the job.
func (r *stageRun) retry(ctx context.Context, op func(ctx context.Context) error) error {
	n, err := r.o.retrier.do(ctx, r.o.retryPolicy(r.job.Stage), op)
	r.job.RetryCount += n
	return err
}

func (r *stageRun) loadPageImage(ctx context.Context, page domain.Page) (domain.PageImage, error) {
	var data []byte
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		data, err = r.o.deps.Blobs.Get(ctx, page.ImageRef)
		return err
	})
	if err != nil {
		return domain.PageImage{}, fmt.Errorf("load page %d image: %w", page.Number, err)
	}
	return domain.PageImage{
		DocumentID: r.doc.ID,
		Scope:      r.doc.Scope,
		PageNumber: page.Number,
		Ref:        page.ImageRef,
		Data:       data,
		Width:      page.Width,
		Height:     page.Height,
		DPI:        r.o.cfg.DPI,
		SourceRef:  r.doc.SourceRef,
	}, nil
}

func (r *stageRun) rasterize(ctx context.Context) (bool, error) {
	var source []byte
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		source, err = r.o.deps.Blobs.Get(ctx, r.doc.SourceRef)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("read source: %w", err)
	}

	var count int
	err = r.retry(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.o.deps.Rasterizer.PageCount(ctx, source)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("count pages: %w", err)
	}
	if r.doc.DeclaredPages == 0 {
		r.doc.DeclaredPages = count
		if err := r.o.deps.Documents.SaveDocument(ctx, r.doc); err != nil {
			return false, fmt.Errorf("save document: %w", err)
		}
	} else if r.doc.DeclaredPages != count {
		return false, domain.NewStageError(domain.TagRasterize, fmt.Errorf("%w: declared %d, rendered %d",
			domain.ErrPageCountMismatch, r.doc.DeclaredPages, count))
	}

	existing, err := r.pagesByNumber(ctx)
	if err != nil {
		return false, err
	}

	for n := 1; n <= count; n++ {
		if _, ok := existing[n]; ok {
			continue
		}
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}

		var rendered driven.RenderedPage
		err := r.retry(ctx, func(ctx context.Context) error {
			var err error
			rendered, err = r.o.deps.Rasterizer.RenderPage(ctx, source, n, r.o.cfg.DPI)
			return err
		})
		if err != nil {
			return false, fmt.Errorf("render page %d: %w", n, err)
		}

		ref := domain.PageImageRef(r.doc.Scope, r.doc.ID, n)
		err = r.retry(ctx, func(ctx context.Context) error {
			return r.o.deps.Blobs.Put(ctx, ref, rendered.PNG)
		})
		if err != nil {
			return false, fmt.Errorf("store page %d: %w", n, err)
		}
		page := &domain.Page{
			DocumentID: r.doc.ID,
			Number:     n,
			ImageRef:   ref,
			Width:      rendered.Width,
			Height:     rendered.Height,
		}
		if err := r.o.deps.Documents.SavePage(ctx, page); err != nil {
			return false, fmt.Errorf("save page %d: %w", n, err)
		}
		existing[n] = *page

		if spent, err := r.unitDone(ctx, len(existing), count, pageMessage(len(existing), count)); err != nil || spent {
			return len(existing) == count && err == nil, err
		}
	}

	if len(existing) != count {
		return false, domain.NewStageError(domain.TagRasterize, fmt.Errorf("%w: declared %d, rendered %d",
			domain.ErrPageCountMismatch, count, len(existing)))
	}
	return true, nil
}

func (r *stageRun) classify(ctx context.Context) (bool, error) {
	pages, err := r.o.deps.Documents.GetPages(ctx, r.doc.ID)
	if err != nil {
		return false, fmt.Errorf("get pages: %w", err)
	}
	done := countPages(pages, func(p domain.Page) bool { return p.Classified })

	for i := range pages {
		page := pages[i]
		if page.Classified {
			continue
		}
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}

		img, err := r.loadPageImage(ctx, page)
		if err != nil {
			return false, err
		}

		var candidates []domain.Region
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			candidates, err = r.o.deps.Classifier.Classify(ctx, img)
			return err
		})
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		var regions []domain.Region
		if err != nil {
			logger.Warn("Classifier failed on page %d of %s, using whole page: %v", page.Number, r.doc.ID, err)
			page.ClassifyFallback = true
		} else {
			regions = r.o.policy.Apply(candidates)
			for j := range regions {
				regions[j].DocumentID = r.doc.ID
				regions[j].PageNumber = page.Number
			}
		}

		if err := r.o.deps.Documents.SaveRegions(ctx, r.doc.ID, page.Number, regions); err != nil {
			return false, fmt.Errorf("save regions for page %d: %w", page.Number, err)
		}
		page.Classified = true
		if err := r.o.deps.Documents.SavePage(ctx, &page); err != nil {
			return false, fmt.Errorf("save page %d: %w", page.Number, err)
		}
		done++

		if spent, err := r.unitDone(ctx, done, len(pages), pageMessage(done, len(pages))); err != nil || spent {
			return done == len(pages) && err == nil, err
		}
	}
	return true, nil
}

func (r *stageRun) extract(ctx context.Context) (bool, error) {
	pages, err := r.o.deps.Documents.GetPages(ctx, r.doc.ID)
	if err != nil {
		return false, fmt.Errorf("get pages: %w", err)
	}
	done := countPages(pages, func(p domain.Page) bool { return p.Extracted })

	for i := range pages {
		page := pages[i]
		if page.Extracted {
			continue
		}
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}

		img, err := r.loadPageImage(ctx, page)
		if err != nil {
			return false, err
		}
		regions, err := r.o.deps.Documents.GetRegions(ctx, r.doc.ID, page.Number)
		if err != nil {
			return false, fmt.Errorf("get regions for page %d: %w", page.Number, err)
		}

		textRegions, err := r.saveFigures(ctx, img, page, regions)
		if err != nil {
			return false, err
		}

		var texts []string
		if len(textRegions) > 0 {
			err = r.retry(ctx, func(ctx context.Context) error {
				var err error
				texts, err = r.o.deps.Extractor.Extract(ctx, img, textRegions)
				return err
			})
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(err, domain.ErrExtraction):
			logger.Warn("Extractor failed on page %d of %s, keeping empty text: %v", page.Number, r.doc.ID, err)
			texts = nil
		default:
			return false, fmt.Errorf("extract page %d: %w", page.Number, err)
		}

		page.RegionTexts = texts
		page.Extracted = true
		if err := r.o.deps.Documents.SavePage(ctx, &page); err != nil {
			return false, fmt.Errorf("save page %d: %w", page.Number, err)
		}
		done++

		if spent, err := r.unitDone(ctx, done, len(pages), pageMessage(done, len(pages))); err != nil || spent {
			return done == len(pages) && err == nil, err
		}
	}
	return true, nil
}

// saveFigures crops and records figure regions and returns the regions
// that go to the text extractor. A page without regions is read whole.
func (r *stageRun) saveFigures(
	ctx context.Context, img domain.PageImage, page domain.Page, regions []domain.Region,
) ([]domain.Region, error) {
	if page.ClassifyFallback || len(regions) == 0 {
		return []domain.Region{img.FullPage()}, nil
	}

	var text []domain.Region
	seq := 0
	for _, region := range regions {
		switch region.Label {
		case domain.LabelText:
			text = append(text, region)
		case domain.LabelFigure:
			seq++
			ref := domain.FigureRef(r.doc.Scope, r.doc.ID, page.Number, seq)
			var stored string
			err := r.retry(ctx, func(ctx context.Context) error {
				var err error
				stored, err = r.o.deps.Figures.SaveFigure(ctx, img, region.Box, ref)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("save figure %d on page %d: %w", seq, page.Number, err)
			}
			fig := &domain.Figure{
				ID:         FigureID(r.doc.ID, page.Number, seq),
				DocumentID: r.doc.ID,
				Scope:      r.doc.Scope,
				PageNumber: page.Number,
				Sequence:   seq,
				ImageRef:   stored,
				Box:        region.Box,
			}
			if err := r.o.deps.Documents.SaveFigure(ctx, fig); err != nil {
				return nil, fmt.Errorf("record figure %d on page %d: %w", seq, page.Number, err)
			}
		}
	}
	return text, nil
}

func (r *stageRun) chunk(ctx context.Context) (bool, error) {
	pages, err := r.o.deps.Documents.GetPages(ctx, r.doc.ID)
	if err != nil {
		return false, fmt.Errorf("get pages: %w", err)
	}
	texts, figures, err := r.o.pageTexts(ctx, r.doc.ID, pages)
	if err != nil {
		return false, err
	}
	done := countPages(pages, func(p domain.Page) bool { return p.Chunked })

	for i := range pages {
		page := pages[i]
		if page.Chunked {
			continue
		}
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}

		if err := r.o.chunkPage(ctx, r.doc, &page, texts[i], figures[page.Number]); err != nil {
			return false, err
		}
		done++

		if spent, err := r.unitDone(ctx, done, len(pages), pageMessage(done, len(pages))); err != nil || spent {
			return done == len(pages) && err == nil, err
		}
	}
	return true, nil
}

// pageTexts normalises the extracted text of pages and groups figure IDs by page.
func (o *Orchestrator) pageTexts(
	ctx context.Context, docID string, pages []domain.Page,
) ([]string, map[int][]string, error) {
	raw := make([][]string, len(pages))
	for i, p := range pages {
		raw[i] = p.RegionTexts
	}
	texts := o.deps.Normaliser.Normalise(raw)

	figs, err := o.deps.Documents.ListFigures(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("list figures: %w", err)
	}
	byPage := make(map[int][]string)
	for _, f := range figs {
		byPage[f.PageNumber] = append(byPage[f.PageNumber], f.ID)
	}
	return texts, byPage, nil
}

// chunkPage stores the chunks of one page and marks it chunked.
func (o *Orchestrator) chunkPage(
	ctx context.Context, doc *domain.Document, page *domain.Page, text string, figureIDs []string,
) error {
	chunks := o.deps.Chunker.Chunk(driven.PageText{
		DocumentID: doc.ID,
		Scope:      doc.Scope,
		PageNumber: page.Number,
		Text:       text,
		FigureIDs:  figureIDs,
	})
	if len(chunks) > 0 {
		if err := o.deps.Documents.SaveChunks(ctx, chunks); err != nil {
			return fmt.Errorf("save chunks for page %d: %w", page.Number, err)
		}
	}
	page.Chunked = true
	if err := o.deps.Documents.SavePage(ctx, page); err != nil {
		return fmt.Errorf("save page %d: %w", page.Number, err)
	}
	return nil
}

func (r *stageRun) embed(ctx context.Context) (bool, error) {
	chunks, err := r.o.deps.Documents.GetChunks(ctx, r.doc.ID)
	if err != nil {
		return false, fmt.Errorf("get chunks: %w", err)
	}

	var pending []domain.Chunk
	done := 0
	for _, c := range chunks {
		if c.Embedding != nil || c.EmbedSkipped {
			done++
			continue
		}
		pending = append(pending, c)
	}

	batch := r.o.deps.Embedder.BatchSize()
	for start := 0; start < len(pending); start += batch {
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}
		end := min(start+batch, len(pending))
		part := pending[start:end]

		n, err := r.o.embedChunks(ctx, part)
		r.job.RetryCount += n
		if err != nil {
			return false, domain.NewStageError(domain.TagEmbed, err)
		}
		done += len(part)

		msg := fmt.Sprintf("chunk %d of %d", done, len(chunks))
		if spent, err := r.unitDone(ctx, done, len(chunks), msg); err != nil || spent {
			return done == len(chunks) && err == nil, err
		}
	}

	if len(chunks) > 0 {
		skipped := 0
		all, err := r.o.deps.Documents.GetChunks(ctx, r.doc.ID)
		if err != nil {
			return false, fmt.Errorf("get chunks: %w", err)
		}
		for _, c := range all {
			if c.EmbedSkipped {
				skipped++
			}
		}
		if skipped == len(all) {
			return false, domain.NewStageError(domain.TagEmbed,
				fmt.Errorf("%w: all %d chunks failed to embed", domain.ErrEmbedding, skipped))
		}
	}
	return true, nil
}

// embedChunks embeds and stores a batch of chunks, marking failures skipped.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []domain.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	results, retries, err := o.deps.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return retries, err
	}
	for i := range chunks {
		if results[i].Err != nil {
			logger.Warn("Skipping chunk %s: %v", chunks[i].ID, results[i].Err)
			chunks[i].EmbedSkipped = true
			continue
		}
		chunks[i].Embedding = results[i].Vector
	}
	if err := o.deps.Documents.SaveChunks(ctx, chunks); err != nil {
		return retries, fmt.Errorf("save chunks: %w", err)
	}
	return retries, nil
}

func (r *stageRun) index(ctx context.Context) (bool, error) {
	chunks, err := r.o.deps.Documents.GetChunks(ctx, r.doc.ID)
	if err != nil {
		return false, fmt.Errorf("get chunks: %w", err)
	}

	var pending []domain.Chunk
	total, done := 0, 0
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		total++
		if c.Indexed {
			done++
			continue
		}
		pending = append(pending, c)
	}

	for start := 0; start < len(pending); start += indexBatchSize {
		if err := r.checkpoint(ctx); err != nil {
			return false, err
		}
		end := min(start+indexBatchSize, len(pending))
		part := pending[start:end]

		err := r.retry(ctx, func(ctx context.Context) error {
			return r.o.indexChunks(ctx, r.doc, part)
		})
		if err != nil {
			return false, domain.NewStageError(domain.TagIndex, err)
		}
		done += len(part)

		msg := fmt.Sprintf("chunk %d of %d", done, total)
		if spent, err := r.unitDone(ctx, done, total, msg); err != nil || spent {
			return done == total && err == nil, err
		}
	}
	return true, nil
}

// indexChunks upserts chunks into the knowledge index and marks them indexed.
func (o *Orchestrator) indexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = domain.IndexEntry{
			ChunkID:      c.ID,
			DocumentID:   doc.ID,
			Scope:        doc.Scope,
			PageNumber:   c.PageNumber,
			Content:      c.Content,
			Vector:       c.Embedding,
			DocumentTime: doc.UploadedAt,
		}
	}
	if err := o.deps.Index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	for i := range chunks {
		chunks[i].Indexed = true
	}
	if err := o.deps.Documents.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// salvage chunks, embeds and indexes the pages of a failed document that
// were fully extracted, so they stay queryable. Errors are logged.
func (o *Orchestrator) salvage(ctx context.Context, doc *domain.Document) {
	pages, err := o.deps.Documents.GetPages(ctx, doc.ID)
	if err != nil {
		logger.Warn("Salvage of %s skipped: %v", doc.ID, err)
		return
	}
	// Boilerplate is counted over the whole deck, so pages that never got
	// text still take part in the normaliser with no regions.
	view := make([]domain.Page, len(pages))
	extracted := 0
	for i, p := range pages {
		view[i] = p
		if p.Extracted {
			extracted++
		} else {
			view[i].RegionTexts = nil
		}
	}
	if extracted == 0 {
		return
	}

	texts, figures, err := o.pageTexts(ctx, doc.ID, view)
	if err != nil {
		logger.Warn("Salvage of %s skipped: %v", doc.ID, err)
		return
	}
	for i := range view {
		if !view[i].Extracted || view[i].Chunked {
			continue
		}
		if err := o.chunkPage(ctx, doc, &view[i], texts[i], figures[view[i].Number]); err != nil {
			logger.Warn("Salvage of %s stopped: %v", doc.ID, err)
			return
		}
	}

	chunks, err := o.deps.Documents.GetChunks(ctx, doc.ID)
	if err != nil {
		logger.Warn("Salvage of %s stopped: %v", doc.ID, err)
		return
	}
	var toEmbed []domain.Chunk
	for _, c := range chunks {
		if c.Embedding == nil && !c.EmbedSkipped {
			toEmbed = append(toEmbed, c)
		}
	}
	if len(toEmbed) > 0 {
		if _, err := o.embedChunks(ctx, toEmbed); err != nil {
			logger.Warn("Salvage of %s stopped: %v", doc.ID, err)
			return
		}
	}

	chunks, err = o.deps.Documents.GetChunks(ctx, doc.ID)
	if err != nil {
		logger.Warn("Salvage of %s stopped: %v", doc.ID, err)
		return
	}
	var toIndex []domain.Chunk
	for _, c := range chunks {
		if c.Embedding != nil && !c.Indexed {
			toIndex = append(toIndex, c)
		}
	}
	if len(toIndex) == 0 {
		return
	}
	_, err = o.retrier.do(ctx, o.retryPolicy(domain.StageIndexing), func(ctx context.Context) error {
		return o.indexChunks(ctx, doc, toIndex)
	})
	if err != nil {
		logger.Warn("Salvage of %s stopped: %v", doc.ID, err)
		return
	}
	logger.Info("Salvaged %d chunks from %d extracted pages of %s", len(toIndex), extracted, doc.ID)
}

func (r *stageRun) pagesByNumber(ctx context.Context) (map[int]domain.Page, error) {
	pages, err := r.o.deps.Documents.GetPages(ctx, r.doc.ID)
	if err != nil {
		return nil, fmt.Errorf("get pages: %w", err)
	}
	out := make(map[int]domain.Page, len(pages))
	for _, p := range pages {
		out[p.Number] = p
	}
	return out, nil
}

func countPages(pages []domain.Page, pred func(domain.Page) bool) int {
	n := 0
	for _, p := range pages {
		if pred(p) {
			n++
		}
	}
	return n
}

func pageMessage(done, total int) string {
	return fmt.Sprintf("page %d of %d", done, total)
}
