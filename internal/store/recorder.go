package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	rangehttp "github.com/tanq16/yandl/internal/downloaders/http"
	"github.com/tanq16/yandl/internal/downloaders/yande"
	"github.com/tanq16/yandl/internal/utils"
)

// Recorder ties one crawl run to the store: posts are recorded when queued
// and updated with the terminal state of their transfer.
type Recorder struct {
	Store *PersistentStore
	RunID string
}

func (r *Recorder) Queue(ctx context.Context, post yande.Post) {
	_, err := r.Store.InsertIfAbsent(ctx, Record{Post: post, State: "queued", RunID: r.RunID})
	if err != nil {
		log.Warn().Str("op", "store/recorder").Int64("id", post.ID).Err(err).Msg("Failed to record post")
	}
}

// Known reports whether a post was already downloaded in an earlier run.
func (r *Recorder) Known(ctx context.Context, id int64) bool {
	rec, err := r.Store.Get(ctx, id)
	return err == nil && rec.DownFlag
}

// OnFinish matches scheduler.Options.OnFinish.
func (r *Recorder) OnFinish(job *utils.Job, err error) {
	post, ok := job.Metadata["post"].(yande.Post)
	if !ok {
		return
	}
	state := job.State
	switch {
	case errors.Is(err, rangehttp.ErrFileExists):
		state = "completed"
	case err != nil && state == "":
		state = "failed"
	case err == nil:
		state = "completed"
	}
	if markErr := r.Store.MarkState(context.Background(), post.ID, state, job.OutputPath); markErr != nil {
		if errors.Is(markErr, ErrNotFound) {
			r.Queue(context.Background(), post)
			markErr = r.Store.MarkState(context.Background(), post.ID, state, job.OutputPath)
		}
		if markErr != nil {
			log.Warn().Str("op", "store/recorder").Int64("id", post.ID).Err(markErr).Msg("Failed to update post state")
		}
	}
}
