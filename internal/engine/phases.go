package engine

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/werewolf/internal/agent"
	"github.com/MrWong99/werewolf/internal/game"
	"github.com/MrWong99/werewolf/internal/observe"
)

func (e *Engine) dispatch(ctx context.Context, phase game.Phase) error {
	switch phase {
	case game.PhaseSetup:
		return e.setup(ctx)
	case game.PhaseNightStart:
		return e.nightStart(ctx)
	case game.PhaseGuardAction:
		return e.guardAction(ctx)
	case game.PhaseWerewolfAction:
		return e.werewolfAction(ctx)
	case game.PhaseSeerAction:
		return e.seerAction(ctx)
	case game.PhaseWitchAction:
		return e.witchAction(ctx)
	case game.PhaseDayAnnounce:
		return e.dayAnnounce(ctx)
	case game.PhaseHunterAction:
		return e.hunterAction(ctx)
	case game.PhaseDayDiscussion:
		return e.dayDiscussion(ctx)
	case game.PhaseVoting:
		return e.voting(ctx)
	case game.PhaseLastWords:
		return e.lastWords(ctx)
	}
	return fmt.Errorf("engine: unknown phase %q", phase)
}

// enter switches to phase with a freshly materialised speaker queue.
func (e *Engine) enter(ctx context.Context, phase game.Phase, queue []int) {
	e.mu.Lock()
	e.state.Phase = phase
	e.queue = queue
	turn := e.state.Turn
	e.mu.Unlock()
	observe.Logger(ctx).Info("phase", "game", e.state.ID, "phase", phase, "turn", turn, "queue", queue)
	e.pause(ctx)
}

// front returns the next seat in the queue without removing it.
func (e *Engine) front() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return 0, false
	}
	return e.queue[0], true
}

// pop removes the front seat and reports whether the queue is now empty.
func (e *Engine) pop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 {
		e.queue = e.queue[1:]
	}
	return len(e.queue) == 0
}

func (e *Engine) player(seat int) game.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.state.Player(seat); p != nil {
		return *p
	}
	return game.Player{}
}

func (e *Engine) players() []game.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return game.ClonePlayers(e.state.Players)
}

func (e *Engine) request(kind agent.Kind, self game.Player) agent.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	req := agent.Request{
		Kind:    kind,
		Self:    self,
		Turn:    e.state.Turn,
		Phase:   e.state.Phase,
		Players: game.ClonePlayers(e.state.Players),
		Log:     e.state.Log[:len(e.state.Log):len(e.state.Log)],
	}
	switch kind {
	case agent.KindWitch:
		req.WolfTarget = e.state.God.WolfTarget
	case agent.KindGuard:
		req.LastGuarded = e.state.LastGuarded
	}
	return req
}

// randomSeat picks a uniformly random seat from seats, or zero.
func (e *Engine) randomSeat(seats []int) int {
	if len(seats) == 0 {
		return 0
	}
	return seats[e.rng.IntN(len(seats))]
}

// kill applies status to seat and returns the announced death.
func (e *Engine) kill(ctx context.Context, seat int, status game.Status) (game.Death, bool) {
	e.mu.Lock()
	ok := e.state.Kill(seat, status)
	e.mu.Unlock()
	if !ok {
		return game.Death{}, false
	}
	if e.metrics != nil {
		e.metrics.RecordDeath(ctx, string(status))
	}
	return game.Death{Seat: seat, Status: status}, true
}

// checkWin evaluates the win condition and finishes the game if it is
// decided.
func (e *Engine) checkWin(ctx context.Context) bool {
	e.mu.Lock()
	e.winEval++
	outcome := game.EvaluateWin(e.state.Players)
	e.mu.Unlock()
	if !outcome.Decided() {
		return false
	}
	e.finish(ctx, outcome)
	return true
}

func (e *Engine) setup(ctx context.Context) error {
	players := e.players()
	for _, p := range players {
		e.whisper(game.PhaseSetup, roleRevealLine(p, players), p.Seat)
	}
	e.say(ctx, game.PhaseSetup, openingLine(players))

	e.mu.Lock()
	e.state.Turn = 1
	e.mu.Unlock()
	e.enter(ctx, game.PhaseNightStart, nil)
	return nil
}

func (e *Engine) nightStart(ctx context.Context) error {
	e.mu.Lock()
	e.state.God.Reset()
	turn := e.state.Turn
	guarded := e.state.HasRole(game.RoleGuard)
	e.mu.Unlock()

	e.say(ctx, game.PhaseNightStart, fmt.Sprintf("第%d夜，天黑请闭眼。", turn))
	if guarded {
		e.openNight(ctx, game.PhaseGuardAction)
	} else {
		e.openNight(ctx, game.PhaseWerewolfAction)
	}
	return nil
}

// openNight enters a secret night phase. The queue holds the living holders
// of the phase's role; the opening line is tagged with the phase so only that
// role perceives it. The line is spoken whenever the role was dealt, alive or
// not, so the narration does not give deaths away.
func (e *Engine) openNight(ctx context.Context, phase game.Phase) {
	role, _ := phase.NightRole()
	e.mu.Lock()
	var queue []int
	for _, p := range e.state.Players {
		if p.Role == role && p.Alive() {
			queue = append(queue, p.Seat)
		}
	}
	dealt := e.state.HasRole(role)
	e.mu.Unlock()

	e.enter(ctx, phase, queue)
	if dealt {
		e.say(ctx, phase, nightOpenLines[phase])
	}
	for _, seat := range queue {
		e.brief(phase, seat)
	}
}

// brief privately tells seat what it needs to know before acting in phase.
func (e *Engine) brief(phase game.Phase, seat int) {
	e.mu.Lock()
	god, last := e.state.God, e.state.LastGuarded
	potions := e.state.Player(seat).Potions
	e.mu.Unlock()

	switch phase {
	case game.PhaseGuardAction:
		if last != 0 {
			e.whisper(phase, fmt.Sprintf("你昨晚守护了%s，今晚不能连续守护同一人。", game.SeatLabel(last)), seat)
		}
	case game.PhaseWitchAction:
		if !potions.Cure && !potions.Poison {
			return
		}
		if god.WolfTarget != 0 {
			e.whisper(phase, fmt.Sprintf("今晚被袭击的是%s。", game.SeatLabel(god.WolfTarget)), seat)
		} else {
			e.whisper(phase, "今晚没有人被袭击。", seat)
		}
	}
}

func (e *Engine) guardAction(ctx context.Context) error {
	if seat, ok := e.front(); ok {
		guard := e.player(seat)
		dec, err := e.decide(ctx, e.request(agent.KindGuard, guard))
		if err != nil {
			return err
		}
		e.pop()
		e.speak(ctx, guard, game.PhaseGuardAction, dec, []int{seat}, true)

		e.mu.Lock()
		target := dec.Target
		valid := game.IsAliveSeat(e.state.Players, target) && target != e.state.LastGuarded
		if valid {
			e.state.God.GuardProtect = target
			e.state.LastGuarded = target
		} else {
			e.state.LastGuarded = 0
		}
		e.mu.Unlock()

		if valid {
			e.whisper(game.PhaseGuardAction, fmt.Sprintf("你今晚守护了%s。", game.SeatLabel(target)), seat)
		} else {
			observe.Logger(ctx).Warn("guard target invalid, no protection tonight", "seat", seat, "target", target)
			e.whisper(game.PhaseGuardAction, "守护目标无效，今晚没有守护任何人。", seat)
		}
	}
	e.openNight(ctx, game.PhaseWerewolfAction)
	return nil
}

func (e *Engine) werewolfAction(ctx context.Context) error {
	seat, ok := e.front()
	if !ok {
		e.openNight(ctx, game.PhaseSeerAction)
		return nil
	}
	e.mu.Lock()
	last := len(e.queue) == 1
	e.mu.Unlock()

	wolf := e.player(seat)
	kind := agent.KindWolfChat
	if last {
		kind = agent.KindWolfKill
	}
	dec, err := e.decide(ctx, e.request(kind, wolf))
	if err != nil {
		return err
	}
	e.pop()

	players := e.players()
	pack := game.WolfSeats(players)
	e.speak(ctx, wolf, game.PhaseWerewolfAction, dec, pack, false)
	if !last {
		return nil
	}

	target := dec.Target
	if !game.IsAliveSeat(players, target) {
		fallback := e.randomSeat(game.AliveSeats(players))
		observe.Logger(ctx).Warn("wolf target invalid, picking at random", "seat", seat, "target", target, "fallback", fallback)
		target = fallback
	}
	e.mu.Lock()
	e.state.God.WolfTarget = target
	e.mu.Unlock()
	e.whisper(game.PhaseWerewolfAction, fmt.Sprintf("狼人今晚袭击%s。", game.SeatLabel(target)), pack...)

	e.openNight(ctx, game.PhaseSeerAction)
	return nil
}

func (e *Engine) seerAction(ctx context.Context) error {
	if seat, ok := e.front(); ok {
		seer := e.player(seat)
		dec, err := e.decide(ctx, e.request(agent.KindSeer, seer))
		if err != nil {
			return err
		}
		e.pop()
		e.speak(ctx, seer, game.PhaseSeerAction, dec, []int{seat}, true)

		players := e.players()
		others := game.SeatsWhere(players, func(p game.Player) bool { return p.Alive() && p.Seat != seat })
		target := dec.Target
		if !slices.Contains(others, target) {
			fallback := e.randomSeat(others)
			observe.Logger(ctx).Warn("seer target invalid, picking at random", "seat", seat, "target", target, "fallback", fallback)
			target = fallback
		}
		if target != 0 {
			e.mu.Lock()
			e.state.God.SeerCheck = target
			e.mu.Unlock()

			checked, _ := game.FindPlayer(players, target)
			verdict := "好人"
			if checked.Role.IsWolf() {
				verdict = "狼人"
			}
			e.whisper(game.PhaseSeerAction, fmt.Sprintf("查验结果：%s是%s。", game.SeatLabel(target), verdict), seat)
		}
	}
	e.openNight(ctx, game.PhaseWitchAction)
	return nil
}

func (e *Engine) witchAction(ctx context.Context) error {
	if seat, ok := e.front(); ok {
		witch := e.player(seat)
		if witch.Potions.Cure || witch.Potions.Poison {
			if err := e.witchTurn(ctx, witch); err != nil {
				return err
			}
		}
		e.pop()
	}
	e.enter(ctx, game.PhaseDayAnnounce, nil)
	return nil
}

// witchTurn lets the witch use at most one potion. A cure needs an unspent
// cure charge and a wolf target; it wins over a poison requested in the same
// reply.
func (e *Engine) witchTurn(ctx context.Context, witch game.Player) error {
	req := e.request(agent.KindWitch, witch)
	dec, err := e.decide(ctx, req)
	if err != nil {
		return err
	}
	e.speak(ctx, witch, game.PhaseWitchAction, dec, []int{witch.Seat}, true)

	var note string
	e.mu.Lock()
	p := e.state.Player(witch.Seat)
	switch {
	case dec.UseCure && p.Potions.Cure && req.WolfTarget != 0:
		e.state.God.WitchSave = true
		p.Potions.Cure = false
		note = fmt.Sprintf("你使用了解药，救下了%s。", game.SeatLabel(req.WolfTarget))
	case dec.PoisonTarget != 0 && p.Potions.Poison && game.IsAliveSeat(e.state.Players, dec.PoisonTarget):
		e.state.God.WitchPoison = dec.PoisonTarget
		p.Potions.Poison = false
		note = fmt.Sprintf("你对%s使用了毒药。", game.SeatLabel(dec.PoisonTarget))
	default:
		note = "你今晚没有使用药水。"
	}
	e.mu.Unlock()

	if dec.UseCure && dec.PoisonTarget != 0 {
		observe.Logger(ctx).Debug("witch asked for both potions, only one applies", "seat", witch.Seat)
	}
	e.whisper(game.PhaseWitchAction, note, witch.Seat)
	return nil
}

func (e *Engine) dayAnnounce(ctx context.Context) error {
	e.mu.Lock()
	god := e.state.God
	dead := god.NightDeaths()
	e.state.God.DeathsTonight = dead
	e.mu.Unlock()

	var deaths []game.Death
	for _, seat := range dead {
		if d, ok := e.kill(ctx, seat, game.StatusDeadNight); ok {
			deaths = append(deaths, d)
		}
	}
	e.narrate(ctx, game.Entry{Phase: game.PhaseDayAnnounce, Content: dawnLine(dead), Deaths: deaths})
	if e.checkWin(ctx) {
		return nil
	}

	for _, seat := range dead {
		if e.player(seat).Role == game.RoleHunter && seat != god.WitchPoison {
			e.startHunter(ctx, seat, false)
			return nil
		}
	}
	e.startDiscussion(ctx)
	return nil
}

func (e *Engine) startHunter(ctx context.Context, seat int, byVote bool) {
	e.mu.Lock()
	e.hunter, e.byVote = seat, byVote
	e.mu.Unlock()
	e.enter(ctx, game.PhaseHunterAction, []int{seat})
	e.say(ctx, game.PhaseHunterAction, fmt.Sprintf("%s是猎人，可以发动技能。", game.SeatLabel(seat)))
}

// startDiscussion queues every living seat, rotating from a random start.
func (e *Engine) startDiscussion(ctx context.Context) {
	alive := game.AliveSeats(e.players())
	var queue []int
	if len(alive) > 0 {
		start := e.rng.IntN(len(alive))
		queue = append(slices.Clone(alive[start:]), alive[:start]...)
	}
	e.enter(ctx, game.PhaseDayDiscussion, queue)
	if len(queue) > 0 {
		e.say(ctx, game.PhaseDayDiscussion, fmt.Sprintf("请从%s开始依次发言。", game.SeatLabel(queue[0])))
	}
}

func (e *Engine) dayDiscussion(ctx context.Context) error {
	for {
		seat, ok := e.front()
		if !ok {
			break
		}
		p := e.player(seat)
		if !p.Alive() {
			e.pop()
			continue
		}
		dec, err := e.decide(ctx, e.request(agent.KindSpeech, p))
		if err != nil {
			return err
		}
		empty := e.pop()
		e.speak(ctx, p, game.PhaseDayDiscussion, dec, nil, false)
		if !empty {
			return nil
		}
		break
	}
	e.enter(ctx, game.PhaseVoting, nil)
	e.say(ctx, game.PhaseVoting, "发言结束，请所有存活玩家投票。")
	return nil
}

// voting gathers every living player's vote concurrently and resolves them.
func (e *Engine) voting(ctx context.Context) error {
	players := e.players()
	var alive []game.Player
	for _, p := range players {
		if p.Alive() {
			alive = append(alive, p)
		}
	}

	votes := make([]int, len(alive))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range alive {
		req := e.request(agent.KindVote, p)
		g.Go(func() error {
			dec, err := e.decide(gctx, req)
			if err != nil {
				return err
			}
			if game.IsAliveSeat(players, dec.Target) {
				votes[i] = dec.Target
			} else {
				votes[i] = game.Abstain
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ballots := make(map[int]int, len(alive))
	for i, p := range alive {
		ballots[p.Seat] = votes[i]
	}
	res := game.ResolveVotes(ballots, e.rng)
	observe.Logger(ctx).Info("votes resolved", "game", e.state.ID, "eliminated", res.Eliminated, "tied", res.Tied)

	var deaths []game.Death
	if res.Eliminated != 0 {
		if d, ok := e.kill(ctx, res.Eliminated, game.StatusDeadVote); ok {
			deaths = append(deaths, d)
		}
	}
	e.narrate(ctx, game.Entry{Phase: game.PhaseVoting, Content: voteLine(res, game.AliveSeats(players)), Deaths: deaths})
	if e.checkWin(ctx) {
		return nil
	}

	if res.Eliminated == 0 {
		e.enter(ctx, game.PhaseLastWords, nil)
		return nil
	}
	if e.player(res.Eliminated).Role == game.RoleHunter {
		e.startHunter(ctx, res.Eliminated, true)
		return nil
	}
	e.enter(ctx, game.PhaseLastWords, []int{res.Eliminated})
	e.say(ctx, game.PhaseLastWords, fmt.Sprintf("请%s发表遗言。", game.SeatLabel(res.Eliminated)))
	return nil
}

func (e *Engine) hunterAction(ctx context.Context) error {
	e.mu.Lock()
	seat, byVote := e.hunter, e.byVote
	e.mu.Unlock()

	if _, ok := e.front(); ok {
		hunter := e.player(seat)
		req := e.request(agent.KindHunter, hunter)
		req.Instruction = hunterNightInstruction
		if byVote {
			req.Instruction = hunterVotedInstruction
		}
		dec, err := e.decide(ctx, req)
		if err != nil {
			return err
		}
		e.pop()
		if byVote {
			e.speak(ctx, hunter, game.PhaseHunterAction, dec, nil, false)
		}

		target := dec.Target
		if target == seat || !game.IsAliveSeat(e.players(), target) {
			target = 0
		}
		var deaths []game.Death
		if target != 0 {
			if d, ok := e.kill(ctx, target, game.StatusDeadShoot); ok {
				deaths = append(deaths, d)
			}
		}
		e.narrate(ctx, game.Entry{Phase: game.PhaseHunterAction, Content: shotLine(seat, target), Deaths: deaths})
		if target != 0 && e.checkWin(ctx) {
			return nil
		}
	}

	e.mu.Lock()
	e.hunter, e.byVote = 0, false
	e.mu.Unlock()
	if byVote {
		e.nextNight(ctx)
	} else {
		e.startDiscussion(ctx)
	}
	return nil
}

func (e *Engine) lastWords(ctx context.Context) error {
	if seat, ok := e.front(); ok {
		p := e.player(seat)
		dec, err := e.decide(ctx, e.request(agent.KindLastWords, p))
		if err != nil {
			return err
		}
		empty := e.pop()
		e.speak(ctx, p, game.PhaseLastWords, dec, nil, false)
		if !empty {
			return nil
		}
	}
	e.nextNight(ctx)
	return nil
}

func (e *Engine) nextNight(ctx context.Context) {
	e.mu.Lock()
	e.state.Turn++
	e.mu.Unlock()
	e.enter(ctx, game.PhaseNightStart, nil)
}
