package log

import "log/slog"

func Workflow[T ~string](name T) slog.Attr {
	return slog.String("workflow", string(name))
}

func ExecutionID[T ~string](id T) slog.Attr {
	return slog.String("execution_id", string(id))
}

func StepRef[T ~string](ref T) slog.Attr {
	return slog.String("step_ref", string(ref))
}

func StepIndex(i int) slog.Attr {
	return slog.Int("step_index", i)
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
