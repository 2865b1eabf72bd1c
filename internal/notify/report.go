package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/raoulx24/rec-pruner/internal/recording"
	"github.com/raoulx24/rec-pruner/internal/retention"
	"github.com/raoulx24/rec-pruner/internal/space"
)

// Retained is a directory the executor failed to remove.
type Retained struct {
	Directory recording.Directory
	Reason    string
}

// VolumeResult is a volume's free space before the wave and after it.
type VolumeResult struct {
	Volume space.VolumeKey
	Before space.Info
	After  space.Info
	// ProbeErr is set when the post-deletion probe failed.
	ProbeErr string
}

// Completion summarises one executed deletion wave.
type Completion struct {
	WaveID     string
	ArmedAt    time.Time
	ExecutedAt time.Time
	Removed    []recording.Directory
	Retained   []Retained
	Volumes    []VolumeResult
}

func (c Completion) RemovedBytes() int64 { return recording.TotalSize(c.Removed) }

// VolumeFailure is a volume that could not be probed this cycle.
type VolumeFailure struct {
	Volume space.VolumeKey
	Paths  []string
	Err    string
}

var funcs = template.FuncMap{
	"bytes": func(n any) string {
		switch v := n.(type) {
		case int64:
			if v < 0 {
				return "-" + humanize.IBytes(uint64(-v))
			}
			return humanize.IBytes(uint64(v))
		case uint64:
			return humanize.IBytes(v)
		}
		return fmt.Sprint(n)
	},
	"pct":  func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"when": func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
}

var tmpl = template.Must(template.New("reports").Funcs(funcs).Parse(`
{{define "warning"}}<html><body>
<h2>Recordings scheduled for deletion</h2>
<p>Wave <code>{{.WaveID}}</code>. The directories below will be removed at <b>{{when .DueAt}}</b>.</p>
{{range .Plans}}
<h3>Volume {{.Volume}}</h3>
<p>Free {{bytes .Space.Free}} of {{bytes .Space.Total}} ({{pct .Space.UsedPercent}} used). To free: {{bytes .SpaceToFree}}. Selected: {{bytes .Bytes}}.</p>
{{if gt .Shortfall 0}}<p style="color:#b00"><b>Insufficient reclaimable space:</b> {{bytes .Shortfall}} still missing after deleting every candidate.</p>{{end}}
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Directory</th><th>Size</th><th>Last modified</th></tr>
{{range .Directories}}<tr><td>{{.Path}}</td><td>{{bytes .Size}}</td><td>{{when .ModTime}}</td></tr>
{{end}}</table>
{{end}}
</body></html>{{end}}

{{define "completion"}}<html><body>
<h2>Recording deletion finished</h2>
<p>Wave <code>{{.WaveID}}</code> armed {{when .ArmedAt}}, executed {{when .ExecutedAt}}.</p>
<h3>Removed ({{len .Removed}}, {{bytes .RemovedBytes}})</h3>
<ul>{{range .Removed}}<li>{{.Path}} ({{bytes .Size}})</li>{{else}}<li>none</li>{{end}}</ul>
{{if .Retained}}<h3 style="color:#b00">Retained ({{len .Retained}})</h3>
<ul>{{range .Retained}}<li>{{.Directory.Path}}: {{.Reason}}</li>{{end}}</ul>{{end}}
<h3>Free space</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Volume</th><th>Before</th><th>After</th><th>Total</th></tr>
{{range .Volumes}}<tr><td>{{.Volume}}</td><td>{{bytes .Before.Free}}</td>
<td>{{if .ProbeErr}}unavailable: {{.ProbeErr}}{{else}}{{bytes .After.Free}}{{end}}</td><td>{{bytes .Before.Total}}</td></tr>
{{end}}</table>
</body></html>{{end}}

{{define "volumeAlert"}}<html><body>
<h2>Volumes could not be checked</h2>
<ul>{{range .}}<li><b>{{.Volume}}</b> ({{range $i, $p := .Paths}}{{if $i}}, {{end}}{{$p}}{{end}}): {{.Err}}</li>{{end}}</ul>
<p>These paths were skipped for this cycle.</p>
</body></html>{{end}}
`))

type warningView struct {
	WaveID string
	DueAt  time.Time
	Plans  []retention.Plan
}

// Warning renders the pre-deletion notice.
func Warning(waveID string, dueAt time.Time, plans []retention.Plan) (Message, error) {
	var total int64
	for _, p := range plans {
		total += p.Bytes()
	}

	html, err := render("warning", warningView{WaveID: waveID, DueAt: dueAt, Plans: plans})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindWarning,
		Subject: fmt.Sprintf("[rec-pruner] %s of recordings will be deleted at %s", humanize.IBytes(uint64(total)), dueAt.Format("2006-01-02 15:04")),
		HTML:    html,
		Data:    warningView{WaveID: waveID, DueAt: dueAt, Plans: plans},
	}, nil
}

// CompletionReport renders the post-deletion notice.
func CompletionReport(c Completion) (Message, error) {
	html, err := render("completion", c)
	if err != nil {
		return Message{}, err
	}

	subject := fmt.Sprintf("[rec-pruner] deleted %d directories (%s)", len(c.Removed), humanize.IBytes(uint64(c.RemovedBytes())))
	if len(c.Retained) > 0 {
		subject += fmt.Sprintf(", %d failed", len(c.Retained))
	}
	return Message{Kind: KindCompletion, Subject: subject, HTML: html, Data: c}, nil
}

// VolumeAlert renders the notice for volumes that could not be probed.
func VolumeAlert(failures []VolumeFailure) (Message, error) {
	html, err := render("volumeAlert", failures)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindVolumeAlert,
		Subject: fmt.Sprintf("[rec-pruner] %d volume(s) could not be checked", len(failures)),
		HTML:    html,
		Data:    failures,
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
