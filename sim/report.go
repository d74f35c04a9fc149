package sim

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/francoispqt/gojay"
)

const (
	tableRule = "# -------|-------|----------|----------|----------|----------|----------||---------"
	tableHdr1 = "#  Es/N0 | Eb/N0 |      FRA |       BE |       FE |      BER |      FER ||  SIM_THR"
	tableHdr2 = "#   (dB) |  (dB) |          |          |          |          |          ||   (Mb/s)"
	tableRow  = " %7.2f |%6.2f |%9d |%9d |%9d |%9.2e |%9.2e ||%9.2f\n"
)

// WriteTable renders the sweep in the classic BER/FER table layout,
// one row per Eb/N0 point.
func WriteTable(w io.Writer, results []PointResult) error {
	for _, line := range []string{tableRule, tableHdr1, tableHdr2, tableRule} {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, r := range results {
		_, err := fmt.Fprintf(w, tableRow,
			r.EsN0(), r.EbN0, r.Frames, r.BitErrors, r.FrameErrors,
			r.BER(), r.FER(), r.Throughput()/1e6)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV emits the sweep with a header row, one record per point.
func WriteCSV(w io.Writer, results []PointResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"ebn0_db", "esn0_db", "sigma", "frames",
		"bit_errors", "frame_errors", "ber", "fer",
		"elapsed_ms", "thr_mbps",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			fmt.Sprintf("%.4f", r.EbN0),
			fmt.Sprintf("%.4f", r.EsN0()),
			fmt.Sprintf("%.6f", r.Sigma),
			fmt.Sprintf("%d", r.Frames),
			fmt.Sprintf("%d", r.BitErrors),
			fmt.Sprintf("%d", r.FrameErrors),
			fmt.Sprintf("%.6e", r.BER()),
			fmt.Sprintf("%.6e", r.FER()),
			fmt.Sprintf("%.3f", float64(r.Elapsed.Microseconds())/1000.0),
			fmt.Sprintf("%.3f", r.Throughput()/1e6),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalJSONObject encodes one sweep point.
func (r PointResult) MarshalJSONObject(enc *gojay.Encoder) {
	enc.FloatKey("ebn0_db", r.EbN0)
	enc.FloatKey("sigma", r.Sigma)
	enc.IntKey("k", r.K)
	enc.Uint64Key("frames", r.Frames)
	enc.Uint64Key("bit_errors", r.BitErrors)
	enc.Uint64Key("frame_errors", r.FrameErrors)
	enc.FloatKey("ber", r.BER())
	enc.FloatKey("fer", r.FER())
	enc.Int64Key("elapsed_ns", r.Elapsed.Nanoseconds())
}

// IsNil reports whether the point is empty.
func (r PointResult) IsNil() bool { return false }

// WriteJSON emits one JSON object per line, the same framing the trace
// recorder uses.
func WriteJSON(w io.Writer, results []PointResult) error {
	for i := range results {
		blob, err := gojay.MarshalJSONObject(&results[i])
		if err != nil {
			return err
		}
		blob = append(blob, '\n')
		if _, err := w.Write(blob); err != nil {
			return err
		}
	}
	return nil
}
