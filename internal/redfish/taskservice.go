package redfish

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vbridge/vbridge/internal/state"
)

func (s *Server) taskResource(snap state.Snapshot) Task {
	t := Task{
		OdataContext:    "/redfish/v1/$metadata#Task.Task",
		OdataID:         taskPath(snap.ID),
		OdataType:       "#Task.v1_4_3.Task",
		ID:              snap.ID,
		Name:            snap.Name,
		TaskState:       string(snap.State),
		TaskStatus:      string(snap.Status),
		PercentComplete: snap.Percent,
		StartTime:       snap.Start.UTC().Format(time.RFC3339),
		TargetURI:       snap.TargetURI,
		Messages:        []TaskMessage{},
	}
	if !snap.End.IsZero() {
		t.EndTime = snap.End.UTC().Format(time.RFC3339)
	}
	for _, m := range snap.Messages {
		t.Messages = append(t.Messages, TaskMessage{
			MessageID: "TaskEvent.1.0.TaskProgressChanged",
			Message:   m.Message,
			Severity:  string(m.Severity),
		})
	}
	return t
}

func (s *Server) getTaskService(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, TaskService{
		OdataContext:                    "/redfish/v1/$metadata#TaskService.TaskService",
		OdataID:                         "/redfish/v1/TaskService",
		OdataType:                       "#TaskService.v1_1_3.TaskService",
		ID:                              "TaskService",
		Name:                            "Task Service",
		DateTime:                        time.Now().UTC().Format(time.RFC3339),
		CompletedTaskOverWritePolicy:    "Oldest",
		LifeCycleEventOnTaskStateChange: true,
		ServiceEnabled:                  true,
		Status:                          statusOK(),
		Tasks:                           Link{OdataID: "/redfish/v1/TaskService/Tasks"},
	})
}

func (s *Server) getTasks(w http.ResponseWriter, _ *http.Request) {
	snaps := s.tasks.List()
	members := make([]Link, 0, len(snaps))
	for _, snap := range snaps {
		members = append(members, Link{OdataID: taskPath(snap.ID)})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#TaskCollection.TaskCollection",
		OdataID:      "/redfish/v1/TaskService/Tasks",
		OdataType:    "#TaskCollection.TaskCollection",
		Name:         "Task Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	snap, ok := s.tasks.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such task "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, s.taskResource(snap))
}

// getTaskMonitor serves the task monitor convention: 202 while the task
// runs, 200 with the final representation once it is terminal.
func (s *Server) getTaskMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	snap, ok := s.tasks.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such task "+id)
		return
	}
	status := http.StatusAccepted
	if snap.Terminal() {
		status = http.StatusOK
	}
	s.writeJSON(w, status, s.taskResource(snap))
}
