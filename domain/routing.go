package domain

// HeldForAI is the pause-gate decision: a message is withheld from AI
// recipients iff the room is paused, at least one human participant is
// bound in the room, the sender is human, and the message is not an
// emergency interjection.
func HeldForAI(paused, humanPresent bool, sender Role, emergency bool) bool {
	return paused && humanPresent && sender == RoleHuman && !emergency
}

// Recipients is the outcome of routing one message: participants served
// right away, and AI participants whose copy waits in the delay queue
// (AI-authored messages) or behind the pause gate (held human messages).
type Recipients struct {
	Immediate []Participant
	DelayedAI []Participant
}

// Route computes the recipient split for a message among the given
// participants. The sender is never a recipient of its own message.
//
// Priority order:
//  1. Human emergency: immediate to everyone, pause ignored.
//  2. Human held: immediate to humans only, AI copies wait for the
//     pause to lift.
//  3. Human otherwise: immediate to everyone.
//  4. AI-authored: immediate to humans, AI copies go through the
//     delay queue when at least one other AI participant exists.
func Route(msg Message, participants []Participant) Recipients {
	var out Recipients
	for _, p := range participants {
		if p.Identity == msg.Sender {
			continue
		}
		switch {
		case msg.SenderRole == RoleHuman && msg.Emergency:
			out.Immediate = append(out.Immediate, p)
		case msg.SenderRole == RoleHuman && msg.HeldForAI:
			if p.Role == RoleAI {
				out.DelayedAI = append(out.DelayedAI, p)
			} else {
				out.Immediate = append(out.Immediate, p)
			}
		case msg.SenderRole == RoleHuman:
			out.Immediate = append(out.Immediate, p)
		default:
			if p.Role == RoleAI {
				out.DelayedAI = append(out.DelayedAI, p)
			} else {
				out.Immediate = append(out.Immediate, p)
			}
		}
	}
	return out
}
