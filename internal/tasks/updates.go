package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SyncList Phase = iota
	ResolveTitles
	ImportItems
	SampleVideos
	SubmitJob
	ExportList
)

func (p Phase) String() string {
	switch p {
	case SyncList:
		return "sync_list"
	case ResolveTitles:
		return "resolve_titles"
	case ImportItems:
		return "import_items"
	case SampleVideos:
		return "sample_videos"
	case SubmitJob:
		return "submit_job"
	case ExportList:
		return "export_list"
	default:
		return ""
	}
}

func syncUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncList,
		Step:    step,
		Total:   total,
		Message: "Fetching music list...",
	}
}

func syncedUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Loaded %d entries", count),
	}
}

func resolveStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTitles,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d titles on niconico...", total),
	}
}

func resolvedUpdate(step, total int, res TitleResult) ProgressUpdate {
	if res.Error != nil {
		return ProgressUpdate{
			Phase:   ResolveTitles,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.ExternalID, res.Error),
			Data:    res,
		}
	}
	return ProgressUpdate{
		Phase:   ResolveTitles,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s %s", step, total, res.ExternalID, res.Title),
		Data:    res,
	}
}

func importUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Importing %d entries...", count),
	}
}

func importedUpdate(step, total int, success, skip, failure int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportItems,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Imported: %d added, %d skipped, %d failed", success, skip, failure),
	}
}

func sampleUpdate(step, total, count, eligible int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SampleVideos,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Picking %d of %d eligible videos...", min(count, eligible), eligible),
	}
}

func submitUpdate(step, total, count int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SubmitJob,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Submitting %d videos to mylist %q...", count, title),
	}
}

func submittedUpdate(step, total int, jobID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SubmitJob,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Registration job %s accepted", jobID),
		Data:    jobID,
	}
}

func exportUpdate(step, total, count int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Wrote %d entries to %s", count, path),
		Data:    path,
	}
}
