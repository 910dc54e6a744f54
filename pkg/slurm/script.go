package slurm

import (
	"bytes"
	"text/template"

	"github.com/benchlab/benchlab/pkg/experiment"
)

// scriptData feeds the array script template. One sub-index per run in the
// chunk; the array task reads its own sub_id from $SLURM_ARRAY_TASK_ID.
type scriptData struct {
	ChunkID        string
	MaxIndex       int
	Limits         experiment.ResourceLimits
	Partition      string
	Account        string
	BeginTime      string
	MailUser       string
	MailType       string
	ExtraArgs      []string
	OutputPattern  string
	ErrorPattern   string
	WrapperPath    string
	ExperimentPath string
}

var arrayScriptTmpl = template.Must(template.New("array").Parse(`#!/bin/bash
#SBATCH --job-name=benchlab-{{.ChunkID}}
{{- if .Partition}}
#SBATCH --partition={{.Partition}}
{{- end}}
{{- if .Account}}
#SBATCH --account={{.Account}}
{{- end}}
{{- if .Limits.CPUs}}
#SBATCH --cpus-per-task={{.Limits.CPUs}}
{{- end}}
{{- if .Limits.MemPerCPU}}
#SBATCH --mem-per-cpu={{.Limits.MemPerCPU}}
{{- end}}
{{- if .Limits.WallTime}}
#SBATCH --time={{.Limits.WallTime}}
{{- end}}
#SBATCH --array=0-{{.MaxIndex}}
#SBATCH --output={{.OutputPattern}}
#SBATCH --error={{.ErrorPattern}}
{{- if .BeginTime}}
#SBATCH --begin={{.BeginTime}}
{{- end}}
{{- if .MailUser}}
#SBATCH --mail-user={{.MailUser}}
{{- end}}
{{- if .MailType}}
#SBATCH --mail-type={{.MailType}}
{{- end}}
{{- range .ExtraArgs}}
#SBATCH {{.}}
{{- end}}

{{.WrapperPath}} {{.ChunkID}} {{.ExperimentPath}} "$SLURM_ARRAY_TASK_ID"
`))

// renderArrayScript fills arrayScriptTmpl for one chunk submission.
func renderArrayScript(data scriptData) (string, error) {
	var buf bytes.Buffer
	if err := arrayScriptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
