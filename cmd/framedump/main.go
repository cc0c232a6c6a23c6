// Framedump lists the frames of a framelink recording and can extract them
// as individual JPEG files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/framelink/internal/record"
	"github.com/1ureka/framelink/internal/util"
)

func main() {
	path := flag.String("path", "", "Path to a .rec recording")
	limit := flag.Int("limit", 0, "Number of records to read (0 = all)")
	extract := flag.String("extract", "", "Directory to write each frame as <index>.jpg")
	flag.Parse()

	if *path == "" {
		util.LogError("missing -path")
		os.Exit(1)
	}

	if err := dump(*path, *limit, *extract); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func dump(path string, limit int, extractDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := record.NewReader(f)
	if err != nil {
		return err
	}

	if extractDir != "" {
		if err := os.MkdirAll(extractDir, 0o755); err != nil {
			return err
		}
	}

	rows := [][]string{{"Index", "Captured", "Bytes"}}
	var (
		count int
		total int64
		first time.Time
		last  time.Time
	)
	for limit <= 0 || count < limit {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		frame := rec.Frame()
		captured := "-"
		if !frame.Captured.IsZero() {
			captured = frame.Captured.Format("15:04:05.000")
			if first.IsZero() {
				first = frame.Captured
			}
			last = frame.Captured
		}
		rows = append(rows, []string{fmt.Sprint(frame.Index), captured, fmt.Sprint(len(frame.Data))})
		count++
		total += int64(len(frame.Data))

		if extractDir != "" {
			name := filepath.Join(extractDir, fmt.Sprintf("%08d.jpg", frame.Index))
			if err := os.WriteFile(name, frame.Data, 0o644); err != nil {
				return err
			}
		}
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	span := last.Sub(first)
	util.LogFields("recording", "frames", count, "bytes", total, "span", span.Round(time.Millisecond))
	if count > 1 && span > 0 {
		util.LogInfo("average %.1f fps", float64(count-1)/span.Seconds())
	}
	return nil
}
