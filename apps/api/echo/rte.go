package echoapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
)

// RTE methods, named after the calls of the SCORM API object.
const (
	MethodGetValue  = "GetValue"
	MethodSetValue  = "SetValue"
	MethodCommit    = "Commit"
	MethodTerminate = "Terminate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// content is served from the package host, not the API's
	CheckOrigin: func(r *http.Request) bool { return true },
}

type (
	// RTEFrame is one runtime call sent by content over the RTE channel.
	RTEFrame struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Key    string          `json:"key,omitempty"`
		Value  string          `json:"value,omitempty"`
	}

	// RTEReply answers the frame with the same id. Value holds the element read by GetValue and
	// "true" or "false" for the other methods, like the return values of the SCORM API.
	RTEReply struct {
		ID        json.RawMessage `json:"id"`
		Value     string          `json:"value"`
		ErrorCode scorm.ErrorCode `json:"error_code,omitempty"`
		RTECode   int             `json:"rte_code"`
		Warning   string          `json:"warning,omitempty"`
	}
)

// rte serves the runtime calls of a session over a WebSocket until the content disconnects.
func (api *scormApi) rte(ctx echo.Context) error {
	sess, ok := getContextSession(ctx)
	if !ok {
		return errors.New("session missing from context")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the handshake error has been written already
		api.logger.Warn("upgrading RTE channel of session "+sess.ID, err)
		return nil
	}
	defer conn.Close()

	reqCtx := ctx.Request().Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				api.logger.Warn("RTE channel of session "+sess.ID+" closed", err, contextPerson(ctx))
			}
			return nil
		}

		var frame RTEFrame
		var reply RTEReply
		if err = json.Unmarshal(msg, &frame); err != nil {
			reply = RTEReply{Value: "false", ErrorCode: scorm.CodeGeneralException, RTECode: 101, Warning: "malformed frame"}
		} else {
			reply = api.call(reqCtx, sess, frame)
		}
		if err = conn.WriteJSON(reply); err != nil {
			api.logger.Warn("writing to RTE channel of session "+sess.ID, err)
			return nil
		}
	}
}

func (api *scormApi) call(ctx context.Context, sess scorm.Session, frame RTEFrame) RTEReply {
	reply := RTEReply{ID: frame.ID, Value: "true"}

	var err error
	switch frame.Method {
	case MethodGetValue:
		reply.Value, err = api.gateway.GetValue(ctx, sess.ID, frame.Key)
	case MethodSetValue:
		err = api.gateway.SetValue(ctx, sess.ID, frame.Key, frame.Value)
	case MethodCommit:
		var report scorm.CommitReport
		if report, err = api.gateway.Commit(ctx, sess.ID); err == nil {
			reply.Warning = api.commitWarning(sess.ID, report)
		}
	case MethodTerminate:
		err = api.terminateSession(ctx, sess.ID)
	default:
		reply.Value = "false"
		reply.ErrorCode = scorm.CodeGeneralException
		reply.RTECode = 101
		reply.Warning = "unknown method " + frame.Method
		return reply
	}

	if err != nil {
		reply.Value = falseValue(frame.Method)
		reply.ErrorCode = scorm.CodeOf(err)
		reply.RTECode = scorm.RTECode(err, sess.Version)
		if reply.ErrorCode == scorm.CodeGeneralException {
			api.logger.Error("RTE call "+frame.Method+" of session "+sess.ID+" failed", err)
		}
	}
	if reply.Warning == "" && api.scheduler.SaveFailing(sess.ID) {
		reply.Warning = warnSaveFailed
	}
	return reply
}

// falseValue is what a failed call returns: GetValue reads the empty string.
func falseValue(method string) string {
	if method == MethodGetValue {
		return ""
	}
	return "false"
}
