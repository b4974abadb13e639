package websocket

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/pkg"
	"github.com/rocketscienceinc/xiangqi-backend/internal/protocol"
	"github.com/rocketscienceinc/xiangqi-backend/internal/session"
)

func rejoinRequest(roomID, token string) protocol.Rejoin {
	return protocol.Rejoin{RoomID: roomID, SessionToken: token}
}

// handleMessage - decodes one frame and answers it. Bad frames are reported, never fatal.
func (that *Server) handleMessage(ctx context.Context, client *client, sessionID string, data []byte) {
	req, err := protocol.Decode(data)
	if err != nil {
		that.sendErrorResponse(client, sessionID, "decode", err)
		return
	}

	that.dispatch(ctx, client, sessionID, req)
}

func (that *Server) dispatch(ctx context.Context, client *client, sessionID string, req protocol.Request) {
	var err error

	switch req := req.(type) {
	case protocol.CreateRoom:
		err = that.handleCreateRoom(ctx, client, sessionID, req)
	case protocol.JoinRoom:
		err = that.handleJoinRoom(ctx, client, sessionID, req)
	case protocol.LeaveRoom:
		err = that.handleLeaveRoom(ctx, sessionID, req)
	case protocol.Rejoin:
		err = that.handleRejoin(ctx, client, sessionID, req)
	case protocol.Move:
		err = that.handleMove(ctx, client, sessionID, req)
	case protocol.Forfeit:
		err = that.handleForfeit(ctx, client, sessionID)
	case protocol.Ping:
		that.reply(client, sessionID, protocol.NewPong())
	default:
		err = fmt.Errorf("%w: %T", protocol.ErrUnknownType, req)
	}

	if err != nil {
		that.sendErrorResponse(client, sessionID, protocol.Type(req), err)
	}
}

func (that *Server) handleCreateRoom(ctx context.Context, client *client, sessionID string, req protocol.CreateRoom) error {
	if err := that.leaveCurrent(ctx, sessionID); err != nil {
		return err
	}

	seat, err := that.rooms.CreateRoom(ctx, sessionID, req.RoomName)
	if err != nil {
		return err
	}

	that.reply(client, sessionID, protocol.NewRoomCreated(seat.Room, seat.SessionToken))

	return nil
}

func (that *Server) handleJoinRoom(ctx context.Context, client *client, sessionID string, req protocol.JoinRoom) error {
	if err := that.leaveCurrent(ctx, sessionID); err != nil {
		return err
	}

	seat, err := that.rooms.JoinRoom(ctx, sessionID, req.RoomID)
	if err != nil {
		return err
	}

	that.reply(client, sessionID, protocol.NewRoomJoined(seat.Room, seat.SessionToken))

	return nil
}

// handleLeaveRoom - leaves the bound room. A roomId naming another room is ignored.
func (that *Server) handleLeaveRoom(ctx context.Context, sessionID string, req protocol.LeaveRoom) error {
	binding, ok := that.binding(sessionID)
	if !ok {
		return nil
	}

	if req.RoomID != "" && pkg.NormalizeRoomID(req.RoomID) != binding.RoomID {
		return nil
	}

	return that.rooms.Leave(ctx, sessionID, binding.RoomID, binding.Token)
}

func (that *Server) handleRejoin(ctx context.Context, client *client, sessionID string, req protocol.Rejoin) error {
	if binding, ok := that.binding(sessionID); ok && binding.Token != req.SessionToken {
		if err := that.rooms.Leave(ctx, sessionID, binding.RoomID, binding.Token); err != nil {
			return err
		}
	}

	snapshot, err := that.rooms.Rejoin(ctx, sessionID, req.RoomID, req.SessionToken)
	if err != nil {
		return err
	}

	that.reply(client, sessionID, protocol.NewRejoined(snapshot.Room, snapshot.Color, snapshot.State))

	return nil
}

func (that *Server) handleMove(ctx context.Context, client *client, sessionID string, req protocol.Move) error {
	binding, ok := that.binding(sessionID)
	if !ok {
		return apperror.ErrSessionUnknown
	}

	move := entity.Move{From: req.From, To: req.To}

	result, err := that.rooms.ApplyMove(ctx, sessionID, binding.RoomID, binding.Token, move)
	if err != nil {
		return err
	}

	that.reply(client, sessionID, protocol.NewMoveConfirmed(move, result.Outcome.Captured))

	if result.GameOver() {
		that.reply(client, sessionID, protocol.NewGameOver(result.State.Winner, protocol.ReasonCapture))
	}

	return nil
}

func (that *Server) handleForfeit(ctx context.Context, client *client, sessionID string) error {
	binding, ok := that.binding(sessionID)
	if !ok {
		return apperror.ErrSessionUnknown
	}

	state, err := that.rooms.Forfeit(ctx, sessionID, binding.RoomID, binding.Token)
	if err != nil {
		return err
	}

	that.reply(client, sessionID, protocol.NewGameOver(state.Winner, protocol.ReasonForfeit))

	return nil
}

// leaveCurrent - a session sits in one room at a time.
func (that *Server) leaveCurrent(ctx context.Context, sessionID string) error {
	binding, ok := that.binding(sessionID)
	if !ok {
		return nil
	}

	return that.rooms.Leave(ctx, sessionID, binding.RoomID, binding.Token)
}

func (that *Server) binding(sessionID string) (session.Binding, bool) {
	sess, ok := that.sessions.Get(sessionID)
	if !ok || !sess.Binding.Bound() {
		return session.Binding{}, false
	}

	return sess.Binding, true
}

func (that *Server) reply(client *client, sessionID string, msg any) {
	log := that.logger.With("method", "reply", "sessionID", sessionID)

	data, err := protocol.Encode(msg)
	if err != nil {
		log.Error("failed to encode response", "error", err)
		return
	}

	if !client.Send(data) {
		log.Warn("response dropped")
	}
}

// sendErrorResponse - reports err to the client. Domain errors are expected traffic.
func (that *Server) sendErrorResponse(client *client, sessionID, requestType string, err error) {
	log := that.logger.With("method", "sendErrorResponse", "sessionID", sessionID, "request", requestType)

	if apperror.IsDomain(err) {
		log.Warn("request rejected", "code", apperror.Code(err), "error", err)
	} else {
		log.Error("request failed", "error", err)
	}

	that.reply(client, sessionID, protocol.NewError(err))
}
