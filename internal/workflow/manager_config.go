package workflow

import "treadmark/internal/queue"

// ConfigureStages registers the concrete lane handlers the workflow will run.
//
// The export lane reuses its start status as the processing status: a saved
// item sits at exporting with no heartbeat until a lane picks it up, and the
// reclaimer only touches rows whose heartbeat has expired.
func (m *Manager) ConfigureStages(set StageSet) {
	ingest := &laneState{kind: laneIngest, name: "ingest", notificationsEnabled: true}
	export := &laneState{kind: laneExport, name: "export", notificationsEnabled: false}

	if set.Ingester != nil {
		ingest.stages = append(ingest.stages, pipelineStage{
			name:             "ingest",
			handler:          set.Ingester,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusIngesting,
			doneStatus:       queue.StatusEditing,
		})
	}
	if set.Organizer != nil {
		export.stages = append(export.stages, pipelineStage{
			name:             "export",
			handler:          set.Organizer,
			startStatus:      queue.StatusExporting,
			processingStatus: queue.StatusExporting,
			doneStatus:       queue.StatusCompleted,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)

	if len(ingest.stages) > 0 {
		ingest.finalize()
		lanes[ingest.kind] = ingest
		order = append(order, ingest.kind)
	}
	if len(export.stages) > 0 {
		export.finalize()
		lanes[export.kind] = export
		order = append(order, export.kind)
	}

	for _, lane := range lanes {
		if lane == nil {
			continue
		}
		lane.runReclaimer = len(lane.processingStatuses) > 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
