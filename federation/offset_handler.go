package federation

import (
	"context"

	"go.uber.org/zap"
)

// OffsetHandler turns a merged stream into an offset and limit window. It
// discards the first Offset results, forwards at most PageSize of the rest and
// holds one result at a time.
type OffsetHandler struct {
	src      ResultSource
	dst      ResultSink
	pageSize int
	offset   int
	logger   *zap.Logger
}

// NewOffsetHandler creates a handler. offset is the number of leading results
// to discard; a non-positive pageSize forwards everything after the offset.
func NewOffsetHandler(src ResultSource, dst ResultSink, pageSize, offset int, logger *zap.Logger) *OffsetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if offset < 0 {
		offset = 0
	}
	return &OffsetHandler{
		src:      src,
		dst:      dst,
		pageSize: pageSize,
		offset:   offset,
		logger:   logger.With(zap.String("component", "offset_handler")),
	}
}

// Run consumes src until it is exhausted, the page is full or ctx is done.
// dst is closed exactly once on every path. Once the page is full the rest of
// src is drained so its producer never blocks.
func (h *OffsetHandler) Run(ctx context.Context) (forwarded int) {
	closed := false
	closeDst := func() {
		if !closed {
			closed = true
			h.dst.Close()
		}
	}
	defer closeDst()

	skipped := 0
	for {
		r, ok, err := h.src.Take(ctx)
		if err != nil {
			h.logger.Debug("offset handler stopped", zap.Error(err))
			return forwarded
		}
		if !ok {
			return forwarded
		}
		if closed {
			continue
		}
		if skipped < h.offset {
			skipped++
			continue
		}
		if err := h.dst.Put(ctx, r); err != nil {
			h.logger.Debug("offset handler output abandoned", zap.Error(err))
			return forwarded
		}
		forwarded++
		if h.pageSize > 0 && forwarded >= h.pageSize {
			closeDst()
		}
	}
}
