package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"signspeak/internal/bootstrap"
	"signspeak/internal/config"
	"signspeak/internal/domain"
	"signspeak/internal/server"
	"signspeak/internal/usecase"
)

const (
	eventView       = "signspeak:view"
	eventCamera     = "signspeak:camera"
	eventDetection  = "signspeak:detection"
	eventRecognized = "signspeak:recognized"
	eventTranscript = "signspeak:transcript"
	eventCleared    = "signspeak:cleared"
	eventTheme      = "signspeak:theme"
	eventError      = "signspeak:error"
)

// SpeechPayload is returned to the frontend, which plays the audio itself.
type SpeechPayload struct {
	Text        string `json:"text"`
	Translated  string `json:"translated"`
	Language    string `json:"language"`
	ContentType string `json:"contentType"`
	AudioBase64 string `json:"audioBase64"`
}

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error

	mu      sync.RWMutex
	preview http.Handler
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.controller = services.Controller

	a.mu.Lock()
	a.preview = services.Server.PreviewHandler()
	a.mu.Unlock()

	a.ViewChanged(domain.ViewLanding)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Sugar().Warnw("shutdown finished with errors", "error", err)
	}
}

// assetHandler backs the asset server for routes outside the embedded
// frontend. Only the camera preview lives there.
func (a *App) assetHandler() http.Handler {
	return http.HandlerFunc(a.servePreview)
}

func (a *App) servePreview(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	preview := a.preview
	a.mu.RUnlock()

	if preview == nil {
		http.Error(w, "camera preview unavailable", http.StatusServiceUnavailable)
		return
	}
	preview.ServeHTTP(w, r)
}

// EnterApp leaves the landing view and starts the camera.
func (a *App) EnterApp() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.EnterApp(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// ExitApp stops the camera and detection and returns to the landing view.
func (a *App) ExitApp() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.ExitApp(); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// ToggleFacing switches between the front and back camera.
func (a *App) ToggleFacing() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.controller.ToggleFacing(a.ctx); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

func (a *App) StartDetection() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.StartDetection(a.ctx)
	return a.controller.Status(), nil
}

func (a *App) StopDetection() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.StopDetection()
	return a.controller.Status(), nil
}

// Reset stops detection and clears the recognized label and transcript.
func (a *App) Reset() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.Reset()
	return a.controller.Status(), nil
}

func (a *App) ToggleTheme() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.controller.ToggleTheme()
	return a.controller.Status(), nil
}

// SpeakTranscript translates the transcript into language and returns the
// synthesized audio.
func (a *App) SpeakTranscript(language string) (SpeechPayload, error) {
	if err := a.requireReady(); err != nil {
		return SpeechPayload{}, err
	}
	utterance, err := a.controller.Speak(a.ctx, language)
	if err != nil {
		return SpeechPayload{}, err
	}
	return SpeechPayload{
		Text:        utterance.Text,
		Translated:  utterance.Translated,
		Language:    utterance.Language,
		ContentType: utterance.ContentType,
		AudioBase64: base64.StdEncoding.EncodeToString(utterance.Audio),
	}, nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{
			View:      domain.ViewLanding,
			Camera:    domain.CameraStatus{Facing: domain.FacingUser},
			Detection: domain.DetectionIdle,
		}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"labelSource":     a.cfg.Labels.Source,
		"cameraFormat":    a.cfg.Camera.InputFormat,
		"frontCamera":     a.cfg.Camera.FrontDevice,
		"backCamera":      a.cfg.Camera.BackDevice,
		"speechLanguage":  a.cfg.Speech.DefaultLanguage,
		"phrasingFile":    a.cfg.Phrasing.Path,
		"previewStream":   server.RouteStream,
		"previewSnapshot": server.RouteFrame,
		"vocabularySize":  fmt.Sprint(len(domain.Vocabulary())),
	}
	if a.cfg.Labels.Source == config.LabelSourceRemote {
		info["labelSourceURL"] = a.cfg.Labels.RemoteURL
	}
	if a.controller != nil {
		info["sessionId"] = a.controller.ID()
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// Alert shows a blocking error dialog.
func (a *App) Alert(_ context.Context, title string, message string) {
	if a.ctx == nil {
		return
	}
	_, _ = runtime.MessageDialog(a.ctx, runtime.MessageDialogOptions{
		Type:    runtime.ErrorDialog,
		Title:   title,
		Message: message,
	})
}

func (a *App) ViewChanged(view domain.View) {
	a.emit(eventView, map[string]string{"view": string(view)})
}

func (a *App) ThemeChanged(dark bool) {
	a.emit(eventTheme, map[string]bool{"dark": dark})
}

// CameraStateChanged emits camera lifecycle updates to the frontend.
func (a *App) CameraStateChanged(status domain.CameraStatus, reason domain.CameraReason) {
	a.emit(eventCamera, map[string]any{
		"active":  status.Active,
		"facing":  string(status.Facing),
		"reason":  string(reason),
		"message": cameraReasonMessage(reason, status.Facing),
	})
}

func (a *App) DetectionStateChanged(state domain.DetectionState) {
	a.emit(eventDetection, map[string]string{"state": string(state)})
}

func (a *App) LabelRecognized(label domain.Label) {
	a.emit(eventRecognized, label)
}

func (a *App) TranscriptUpdated(text string) {
	a.emit(eventTranscript, map[string]string{"text": text})
}

func (a *App) RecognitionCleared() {
	a.emit(eventCleared, nil)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	if payload == nil {
		runtime.EventsEmit(a.ctx, name)
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func cameraReasonMessage(reason domain.CameraReason, facing domain.FacingMode) string {
	switch reason {
	case domain.CameraReasonStarted:
		return fmt.Sprintf("Camera on (%s)", facingLabel(facing))
	case domain.CameraReasonRestarted:
		return fmt.Sprintf("Switched to %s camera", facingLabel(facing))
	case domain.CameraReasonStopped:
		return "Camera off"
	case domain.CameraReasonFailed:
		return usecase.CameraAlertMessage
	case domain.CameraReasonFacingChanged:
		return fmt.Sprintf("Will use %s camera", facingLabel(facing))
	default:
		return ""
	}
}

func facingLabel(facing domain.FacingMode) string {
	if facing == domain.FacingEnvironment {
		return "back"
	}
	return "front"
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCamera:
		return "Camera unavailable"
	case domain.ErrorCodeCameraStop:
		return "Camera stop issue"
	case domain.ErrorCodeLabelSource:
		return "Recognition issue"
	case domain.ErrorCodeSpeech:
		return "Speech failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
