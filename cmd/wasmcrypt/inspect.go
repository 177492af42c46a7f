package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/service"
)

// summaryTypes are the element widths shown for every inspected region.
var summaryTypes = []memory.ElementType{
	memory.Uint8,
	memory.Int16,
	memory.Uint32,
	memory.Float32,
	memory.Float64,
}

func runInspect(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	sample := fs.Bool("sample", false, "write a 2x3 sample frame to the file before reading it")
	module := fs.Bool("module", false, "also summarize a fresh instance of the configured engine's module")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wasmcrypt inspect [-sample] [-module] <file>")
	}
	path := fs.Arg(0)

	if *sample {
		if err := writeSample(path); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := inspectFrame(os.Stdout, data); err != nil {
		return err
	}

	if *module {
		return inspectModule(ctx, os.Stdout, cfg, logger)
	}
	return nil
}

func writeSample(path string) error {
	frame := memory.Frame{Rows: 2, Cols: 3, Values: []float32{0, 0.5, 1, 1.5, 2, 2.5}}
	region, err := memory.NewRegion(frame.EncodedSize())
	if err != nil {
		return err
	}
	dv, err := memory.NewDataView(region)
	if err != nil {
		return err
	}
	if err := memory.EncodeFrame(dv, frame); err != nil {
		return err
	}
	return os.WriteFile(path, region.Bytes(), 0o644)
}

// inspectFrame parses data as a frame and summarizes typed views over it.
func inspectFrame(w io.Writer, data []byte) error {
	region := memory.Wrap(data)
	dv, err := memory.NewDataView(region)
	if err != nil {
		return err
	}

	frame, err := memory.DecodeFrame(dv)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "frame: %d rows x %d cols (%d bytes)\n", frame.Rows, frame.Cols, frame.EncodedSize())
	for r := 0; r < int(frame.Rows); r++ {
		row := frame.Values[r*int(frame.Cols) : (r+1)*int(frame.Cols)]
		fmt.Fprintf(w, "  row %d: %v\n", r, row)
	}
	if trailing := region.Capacity() - frame.EncodedSize(); trailing > 0 {
		fmt.Fprintf(w, "  %d trailing bytes\n", trailing)
	}

	return summarize(w, region)
}

// summarize prints one line per element type: element count, covered bytes
// and the first element read big-endian.
func summarize(w io.Writer, region *memory.Region) error {
	fmt.Fprintf(w, "region: %d bytes, generation %d\n", region.Capacity(), region.Generation())
	for _, t := range summaryTypes {
		view, err := memory.NewView(region, memory.WithElement(t), memory.WithByteOrder(binary.BigEndian))
		if err != nil {
			return err
		}
		first := "-"
		if view.Len() > 0 {
			first, err = formatElement(view, 0)
			if err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "  %-8s len=%-8d bytes=%-8d first=%s\n", t, view.Len(), view.ByteLength(), first)
	}
	return nil
}

func formatElement(v *memory.View, i int) (string, error) {
	t := v.ElementType()
	switch {
	case t.Float():
		f, err := v.Float(i)
		return fmt.Sprint(f), err
	case t.Signed():
		n, err := v.Int(i)
		return fmt.Sprint(n), err
	}
	n, err := v.Uint(i)
	return fmt.Sprint(n), err
}

func inspectModule(ctx context.Context, w io.Writer, cfg *config.Config, logger *zap.Logger) error {
	factory, shutdown, err := service.Factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown(context.WithoutCancel(ctx))

	mod, err := factory(ctx)
	if err != nil {
		return err
	}
	defer mod.Close(context.WithoutCancel(ctx))
	if err := mod.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(w, "module %s (%s engine)\n", mod.Name(), cfg.Engine)
	return summarize(w, mod.Region())
}
