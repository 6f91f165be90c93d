package pipeline

import (
	"context"
	"fmt"
)

const logTailLines = 100

// dumpDiagnostics prints pod status and recent logs for the namespace so a
// failing run leaves enough for a manual postmortem. Dump errors are reported
// but never mask the failure that triggered the dump.
func (p *Pipeline) dumpDiagnostics(ctx context.Context, namespace string) {
	p.ui.Warning(fmt.Sprintf("Dumping diagnostics for namespace %s", namespace))

	statuses, err := p.deps.Cluster.PodStatuses(ctx, namespace)
	if err != nil {
		p.ui.Warning(fmt.Sprintf("Failed to list pods: %v", err))
		return
	}
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{s.Name, s.Ready, s.Phase, fmt.Sprintf("%d", s.Restarts)})
	}
	p.ui.Table([]string{"POD", "READY", "STATUS", "RESTARTS"}, rows)

	for _, s := range statuses {
		logs, err := p.deps.Cluster.PodLogs(ctx, namespace, s.Name, logTailLines)
		if err != nil {
			p.ui.Warning(fmt.Sprintf("Failed to fetch logs for %s: %v", s.Name, err))
			continue
		}
		p.ui.Info(fmt.Sprintf("--- logs: %s ---", s.Name))
		p.ui.Raw(logs)
	}
}
