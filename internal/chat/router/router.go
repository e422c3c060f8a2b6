package router

import (
	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/internal/chat/session"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
	"github.com/lk2023060901/garden-chat-go/pkg/util/typeutil"
)

// Delivery pairs one outbound message with its target session.
type Delivery struct {
	To  *session.Session
	Msg protocol.Message
}

// Plan turns one inbound message into the deliveries it implies, evaluated
// against a point-in-time snapshot of online sessions. Plan has no side
// effects and no locking; given the same snapshot it always produces the
// same deliveries, regardless of registry churn after the snapshot.
//
// Routing rules:
//   - DM to an offline user plans nothing. The sender gets no failure signal.
//   - MULTI recipients are independent; duplicates and the sender's own name
//     are each delivered once, absent names are skipped.
//   - BROADCAST reaches every snapshot member except the sender.
//   - USERS_REQ plans a USERS_RESP back to the sender listing the snapshot's
//     usernames in ascending order.
//
// Kinds with no routing semantics (LOGOUT, LOGIN_REQ and the
// server-to-client kinds) plan nothing.
func Plan(sender string, in protocol.Message, snapshot []*session.Session) ([]Delivery, error) {
	byName := make(map[string]*session.Session, len(snapshot))
	for _, s := range snapshot {
		byName[s.Username()] = s
	}

	switch msg := in.(type) {
	case *protocol.DM:
		if msg.To == "" {
			return nil, merr.WrapErrMessageFieldMissing("to", string(protocol.KindDM))
		}
		target, ok := byName[msg.To]
		if !ok {
			return nil, nil
		}
		return []Delivery{{
			To:  target,
			Msg: &protocol.DM{From: sender, Msg: msg.Msg},
		}}, nil

	case *protocol.Multi:
		if len(msg.To) == 0 {
			return nil, merr.WrapErrMessageFieldMissing("to", string(protocol.KindMulti))
		}
		seen := typeutil.NewSet[string]()
		var out []Delivery
		for _, name := range msg.To {
			if seen.Contain(name) {
				continue
			}
			seen.Insert(name)
			target, ok := byName[name]
			if !ok {
				continue
			}
			out = append(out, Delivery{
				To:  target,
				Msg: &protocol.Multi{From: sender, Msg: msg.Msg},
			})
		}
		return out, nil

	case *protocol.Broadcast:
		peers := lo.Filter(snapshot, func(s *session.Session, _ int) bool {
			return s.Username() != sender
		})
		return lo.Map(peers, func(s *session.Session, _ int) Delivery {
			return Delivery{
				To:  s,
				Msg: &protocol.Broadcast{From: sender, Msg: msg.Msg},
			}
		}), nil

	case *protocol.UsersReq:
		self, ok := byName[sender]
		if !ok {
			// Sender vanished between snapshot and plan; nothing to answer.
			return nil, nil
		}
		users := lo.Map(snapshot, func(s *session.Session, _ int) string {
			return s.Username()
		})
		slices.Sort(users)
		return []Delivery{{
			To:  self,
			Msg: &protocol.UsersResp{Users: users},
		}}, nil

	default:
		return nil, nil
	}
}
