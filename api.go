package main

import (
	"net/http"
	"strings"

	"github.com/CodedInternet/pitank/onboard"
	deviceErrors "github.com/CodedInternet/pitank/onboard/errors"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

//---
// Error responses
//---

type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(err error, code int, status string) render.Renderer {
	resp := &ErrResponse{Err: err, HTTPStatusCode: code, StatusText: status}
	if err != nil {
		resp.ErrorText = err.Error()
	}
	return resp
}

func ErrInvalidRequest(err error) render.Renderer {
	return errResponse(err, http.StatusBadRequest, "Invalid request.")
}

func ErrUnauthorized(err error) render.Renderer {
	return errResponse(err, http.StatusUnauthorized, "Unauthorized.")
}

func ErrPermissionDenied(err error) render.Renderer {
	return errResponse(err, http.StatusForbidden, "Permission denied.")
}

func ErrRender(err error) render.Renderer {
	return errResponse(err, http.StatusInternalServerError, "Error rendering response.")
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

//---
// Payloads
//---

type CommandPayload struct {
	Command string `json:"command"`
}

func (p *CommandPayload) Bind(r *http.Request) error {
	p.Command = strings.TrimSpace(p.Command)
	if p.Command == "" {
		return errors.New("no command provided")
	}
	return nil
}

type GamepadPayload struct {
	LeftStickY  *float64 `json:"left_stick_y"`
	RightStickY *float64 `json:"right_stick_y"`
}

func (p *GamepadPayload) Bind(r *http.Request) error {
	if p.LeftStickY == nil || p.RightStickY == nil {
		return errors.New("left_stick_y and right_stick_y are required")
	}
	return nil
}

// CommandResponse acknowledges a control request.
type CommandResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

//---
// Views
//---

var craneCommands = map[string]bool{
	onboard.CMD_CRANE_UP:      true,
	onboard.CMD_CRANE_DOWN:    true,
	onboard.CMD_CRANE_STOP:    true,
	onboard.CMD_GRABBER_OPEN:  true,
	onboard.CMD_GRABBER_CLOSE: true,
	onboard.CMD_GRABBER_STOP:  true,
}

// Control runs any symbolic command.
func Control(w http.ResponseWriter, r *http.Request) {
	data := &CommandPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	dispatch(w, r, data.Command)
}

// CraneControl only accepts lift and grabber commands.
func CraneControl(w http.ResponseWriter, r *http.Request) {
	data := &CommandPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if !craneCommands[data.Command] {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, CommandResponse{
			Status:  "invalid",
			Command: data.Command,
			Error:   deviceErrors.InvalidCommandError{Command: data.Command}.Error(),
		})
		return
	}
	dispatch(w, r, data.Command)
}

func dispatch(w http.ResponseWriter, r *http.Request, command string) {
	applied, err := ENV.Tank.DispatchCommand(r.Context(), command)
	resp := CommandResponse{Status: "success", Command: command, Applied: applied}

	switch {
	case err == nil:
	case deviceErrors.IsInvalidCommand(err):
		render.Status(r, http.StatusBadRequest)
		resp.Status, resp.Error = "invalid", err.Error()
	case deviceErrors.IsHardwareUnavailable(err):
		render.Status(r, http.StatusServiceUnavailable)
		resp.Status, resp.Error = "unavailable", err.Error()
	default:
		render.Status(r, http.StatusInternalServerError)
		resp.Status, resp.Error = "error", err.Error()
	}

	render.JSON(w, r, resp)
}

// GamepadControl drives the tracks from a browser gamepad.
func GamepadControl(w http.ResponseWriter, r *http.Request) {
	data := &GamepadPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Tank.ApplyStickInput(*data.LeftStickY, *data.RightStickY); err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, CommandResponse{Status: "error", Error: err.Error()})
		return
	}
	render.JSON(w, r, CommandResponse{Status: "success", Applied: true})
}

func Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Tank.Status())
}

func CraneStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Tank.CraneStatus())
}
