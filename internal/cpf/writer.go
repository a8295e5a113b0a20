package cpf

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

// Write validates h and then emits H1, H2, H9, one 10 record per sample
// and the 99 terminator. Nothing is written when validation fails. Leap
// second flags are always zero and positions are metres.
func Write(w io.Writer, h Header, samples []model.EphemerisSample) error {
	if err := h.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	p := h.Produced.UTC()
	if h.Version == 1 {
		fmt.Fprintf(bw, "H1 CPF %2d  %-3s %4d %02d %02d %02d  %04d %-10s\n",
			h.Version, h.Source, p.Year(), int(p.Month()), p.Day(), p.Hour(), h.Sequence, h.Target)
	} else {
		fmt.Fprintf(bw, "H1 CPF %2d  %-3s %4d %02d %02d %02d  %03d %02d %-10s\n",
			h.Version, h.Source, p.Year(), int(p.Month()), p.Day(), p.Hour(), h.Sequence, h.SubDaily, h.Target)
	}

	s, e := h.Start.UTC(), h.End.UTC()
	fmt.Fprintf(bw, "H2 %8s %4s %8s %s %s %5d %1d %1d %2d %1d %1d\n",
		h.COSPAR, h.SIC, h.NORAD, stamp(s), stamp(e), int(h.Step/time.Second),
		1, h.targetType(), 0, 0, 0)
	bw.WriteString("H9\n")

	for _, smp := range samples {
		day, sod := timectrl.MJD(smp.Epoch)
		fmt.Fprintf(bw, "10 %1d %5d %13.6f %2d %17.3f %17.3f %17.3f\n",
			0, day, sod, 0, smp.Position.X, smp.Position.Y, smp.Position.Z)
	}
	bw.WriteString("99\n")
	return bw.Flush()
}

func stamp(t time.Time) string {
	return fmt.Sprintf("%4d %02d %02d %02d %02d %02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}
