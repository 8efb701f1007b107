package histeq

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/histeq/internal/compute"
)

// Profile holds the timings of one run, measured around each blocking
// device call.
type Profile struct {
	// Stages is the kernel time of each stage, indexed by compute.Stage.
	Stages [compute.StageCount]time.Duration

	// Upload and Download are the host-device transfer times.
	Upload   time.Duration
	Download time.Duration

	// Total is the wall time of the run.
	Total time.Duration

	// Events lists every device operation in issue order.
	Events []Event
}

// Kernel returns the summed kernel time of the four stages.
func (p *Profile) Kernel() time.Duration {
	var d time.Duration
	for _, s := range p.Stages {
		d += s
	}
	return d
}

// Transfer returns Upload + Download.
func (p *Profile) Transfer() time.Duration {
	return p.Upload + p.Download
}

func (p *Profile) record(ev Event) {
	p.Events = append(p.Events, ev)
	switch ev.Kind {
	case compute.EventUpload:
		p.Upload += ev.Duration()
	case compute.EventDownload:
		p.Download += ev.Duration()
	}
}

func (p *Profile) recordStage(stage compute.Stage, ev Event) {
	p.record(ev)
	p.Stages[stage] += ev.Duration()
}

// String formats the profile as a report in nanoseconds and microseconds.
func (p *Profile) String() string {
	pr := message.NewPrinter(language.English)
	var b strings.Builder

	line := func(name string, d time.Duration) {
		pr.Fprintf(&b, "%-22s %14d ns %12.1f µs\n", name, d.Nanoseconds(), float64(d.Nanoseconds())/1e3)
	}
	for s := compute.StageHistogram; s < compute.StageCount; s++ {
		line("kernel "+s.String(), p.Stages[s])
	}
	line("kernel total", p.Kernel())
	line("upload", p.Upload)
	line("download", p.Download)
	line("memory transfer", p.Transfer())
	line("total", p.Total)
	return b.String()
}
