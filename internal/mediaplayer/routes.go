package mediaplayer

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/apperrors"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
)

// CommandResult is returned by every command endpoint.
type CommandResult struct {
	Object  string `json:"object"`
	Command string `json:"command"`
	View    *View  `json:"media_player,omitempty"`
}

type volumeRequest struct {
	Level *float64 `json:"level"`
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

type sourceRequest struct {
	Source string `json:"source"`
}

// RegisterRoutes wires media player routes to the router.
func RegisterRoutes(router chi.Router, player *Player) {
	router.Method(http.MethodGet, "/v1/media-player", api.Handler(getView(player)))
	router.Method(http.MethodGet, "/v1/media-player/snapshot", api.Handler(getSnapshot(player)))
	router.Method(http.MethodPost, "/v1/media-player/refresh", api.Handler(refresh(player)))

	router.Method(http.MethodPost, "/v1/media-player/turn-on", api.Handler(runCommand(player, CommandTurnOn,
		func(ctx context.Context, r *http.Request) error { return player.TurnOn(ctx) })))
	router.Method(http.MethodPost, "/v1/media-player/turn-off", api.Handler(runCommand(player, CommandTurnOff,
		func(ctx context.Context, r *http.Request) error { return player.TurnOff(ctx) })))
	router.Method(http.MethodPost, "/v1/media-player/volume/up", api.Handler(runCommand(player, CommandVolumeUp,
		func(ctx context.Context, r *http.Request) error { return player.VolumeUp(ctx) })))
	router.Method(http.MethodPost, "/v1/media-player/volume/down", api.Handler(runCommand(player, CommandVolumeDown,
		func(ctx context.Context, r *http.Request) error { return player.VolumeDown(ctx) })))
	router.Method(http.MethodPost, "/v1/media-player/volume", api.Handler(runCommand(player, CommandSetVolume, setVolume(player))))
	router.Method(http.MethodPost, "/v1/media-player/mute", api.Handler(runCommand(player, CommandMute, setMute(player))))
	router.Method(http.MethodPost, "/v1/media-player/source", api.Handler(runCommand(player, CommandSelectSource, selectSource(player))))
}

// getView returns the host view.
// GET /v1/media-player
func getView(player *Player) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		view, err := player.View()
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, view)
	}
}

// getSnapshot returns the raw snapshot.
// GET /v1/media-player/snapshot
func getSnapshot(player *Player) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		snapshot, err := player.Snapshot()
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":     "snapshot",
			"identity":   snapshot.Identity,
			"sources":    snapshot.Sources,
			"playback":   snapshot.Playback,
			"fetched_at": snapshot.FetchedAt,
		})
	}
}

// refresh forces a refresh and returns the new view.
// POST /v1/media-player/refresh
func refresh(player *Player) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := player.Refresh(r.Context()); err != nil {
			return toAppError(err)
		}
		view, err := player.View()
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, view)
	}
}

func runCommand(player *Player, command string, call func(ctx context.Context, r *http.Request) error) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := call(r.Context(), r); err != nil {
			return toAppError(err)
		}
		result := CommandResult{Object: "command_result", Command: command}
		if view, err := player.View(); err == nil {
			result.View = &view
		}
		return api.WriteAction(w, http.StatusOK, result)
	}
}

// setVolume handles POST /v1/media-player/volume {"level": 0.4}.
func setVolume(player *Player) func(ctx context.Context, r *http.Request) error {
	return func(ctx context.Context, r *http.Request) error {
		var req volumeRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return err
		}
		if req.Level == nil {
			return apperrors.NewValidationError("level is required", nil)
		}
		return player.SetVolumeLevel(ctx, *req.Level)
	}
}

// setMute handles POST /v1/media-player/mute {"muted": true}.
func setMute(player *Player) func(ctx context.Context, r *http.Request) error {
	return func(ctx context.Context, r *http.Request) error {
		var req muteRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return err
		}
		if req.Muted == nil {
			return apperrors.NewValidationError("muted is required", nil)
		}
		return player.MuteVolume(ctx, *req.Muted)
	}
}

// selectSource handles POST /v1/media-player/source {"source": "TV"}.
func selectSource(player *Player) func(ctx context.Context, r *http.Request) error {
	return func(ctx context.Context, r *http.Request) error {
		var req sourceRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			return err
		}
		if req.Source == "" {
			return apperrors.NewValidationError("source is required", nil)
		}
		return player.SelectSource(ctx, req.Source)
	}
}

// toAppError maps coordinator and command errors onto HTTP errors.
func toAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var unknownSource *UnknownSourceError
	if errors.As(err, &unknownSource) {
		return apperrors.NewAppError(apperrors.ErrorCodeUnknownSource, unknownSource.Error(), http.StatusNotFound, map[string]any{
			"source":    unknownSource.Name,
			"available": unknownSource.Available,
		})
	}

	if errors.Is(err, ErrInvalidVolume) {
		return apperrors.NewAppError(apperrors.ErrorCodeInvalidVolume, err.Error(), http.StatusBadRequest, nil)
	}

	var commandFailed *CommandFailedError
	if errors.As(err, &commandFailed) {
		details := map[string]any{
			"command": commandFailed.Command,
			"reason":  commandFailed.Err.Error(),
		}
		if commandFailed.RefreshErr != nil {
			details["refresh_error"] = commandFailed.RefreshErr.Error()
		}
		return apperrors.NewBadGatewayError(apperrors.ErrorCodeCommandFailed, commandFailed.Error(), details)
	}

	if errors.Is(err, coordinator.ErrNotReady) {
		return apperrors.NewServiceUnavailableError(apperrors.ErrorCodeNotReady, "Receiver state has not been fetched yet", nil)
	}

	var unavailable *coordinator.UnavailableError
	if errors.As(err, &unavailable) {
		return apperrors.NewServiceUnavailableError(apperrors.ErrorCodeDeviceUnavailable, unavailable.Error(), map[string]any{
			"coordinator": unavailable.Name,
		})
	}

	if errors.Is(err, coordinator.ErrFailed) || errors.Is(err, coordinator.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewServiceUnavailableError(apperrors.ErrorCodeDeviceUnavailable, err.Error(), nil)
	}

	return apperrors.NewInternalError("Internal server error")
}
