package sizer

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/common/compress"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/siz"
)

func (a *App) validateEncodeParams() error {
	p := a.Params.Encode
	switch {
	case p.Forward == "":
		return invalid("forward", p.Forward, "not provided")
	case p.Reverse == "":
		return invalid("reverse", p.Reverse, "not provided")
	case p.Output == "":
		return invalid("output", p.Output, "not provided")
	}
	return nil
}

// Encode converts one read pair into SIZ chunks named <output>_chunk<NNNNNN>.fastq.zst. This is the command
// every submitted job runs.
func (a *App) Encode(ctx *sizercontext.Context) error {
	if err := a.validateEncodeParams(); err != nil {
		return err
	}
	p := a.Params.Encode
	config := a.Params.Config.Encoding
	ctx = sizercontext.WithLogFields(ctx, logrus.Fields{"forward": p.Forward, "reverse": p.Reverse, "output": p.Output})

	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	encoder := siz.NewEncoder(int(config.ChunkSize), compress.ZstdWriterFactory{
		Level:       int(config.ZstdLevel),
		Concurrency: config.Concurrency,
	})

	start := time.Now()
	summary, err := encoder.EncodeObjects(ctx, store, store, p.Forward, p.Reverse, p.Output)
	if err != nil {
		_ = a.writeMetrics(ctx)
		return err
	}
	elapsed := time.Since(start)
	a.metrics().RecordEncoding(summary.Pairs, len(summary.Chunks), elapsed.Seconds())

	fmt.Fprintf(a.Out, "Wrote %s read pair(s) to %d chunk(s) under %s in %s\n",
		humanize.Comma(summary.Pairs), len(summary.Chunks), p.Output, elapsed.Round(time.Millisecond))
	return a.writeMetrics(ctx)
}
