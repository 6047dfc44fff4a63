package progress

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Reporter logs each report as a one-line status.
type Reporter struct {
	Log logrus.FieldLogger
}

// NewReporter returns a Reporter writing to log.
func NewReporter(log logrus.FieldLogger) *Reporter {
	return &Reporter{Log: log}
}

func (r *Reporter) Observe(p Progress) {
	fields := logrus.Fields{
		"batch":   p.Batch,
		"rows":    p.TotalRows,
		"rps":     int64(p.RowsPerSecond),
		"segment": p.Segment,
		"seq":     p.Seq,
		"elapsed": p.Elapsed.Round(time.Millisecond).String(),
	}
	if p.Stages != nil {
		fields["fetch"] = p.Stages.Fetch.String()
		fields["convert"] = p.Stages.Convert.String()
		fields["write"] = p.Stages.Write.String()
		if p.Stages.Rotate > 0 {
			fields["rotate"] = p.Stages.Rotate.String()
		}
	}
	r.Log.WithFields(fields).Infof("progress: %d rows at %.0f rows per second", p.TotalRows, p.RowsPerSecond)
}
