package agent

import (
	"context"
	"testing"

	"github.com/MrWong99/werewolf/internal/game"
)

func TestRandomDecider_LegalTargets(t *testing.T) {
	t.Parallel()

	d := NewRandomDecider(1)
	ctx := context.Background()

	for range 200 {
		req := request(1, KindWolfKill)
		req.Players[4].Status = game.StatusDeadNight // seat 5
		got := d.Decide(ctx, req)
		p, ok := game.FindPlayer(req.Players, got.Target)
		if !ok || !p.Alive() || p.Role.IsWolf() {
			t.Fatalf("wolf kill picked seat %d", got.Target)
		}

		req = request(7, KindSeer)
		if got := d.Decide(ctx, req); got.Target == 7 || got.Target == 0 {
			t.Fatalf("seer checked seat %d", got.Target)
		}

		req = request(8, KindGuard)
		req.LastGuarded = 3
		if got := d.Decide(ctx, req); got.Target == 3 || got.Target == 0 {
			t.Fatalf("guard protected seat %d", got.Target)
		}
	}
}

func TestRandomDecider_WitchCuresWhileAble(t *testing.T) {
	t.Parallel()

	d := NewRandomDecider(2)
	req := request(8, KindWitch)
	req.WolfTarget = 4
	if got := d.Decide(context.Background(), req); !got.UseCure || got.PoisonTarget != 0 {
		t.Errorf("Decide = %+v", got)
	}

	req.Self.Potions.Cure = false
	if got := d.Decide(context.Background(), req); got.UseCure {
		t.Errorf("witch without cure chose to cure")
	}
}

func TestRandomDecider_Speaks(t *testing.T) {
	t.Parallel()

	d := NewRandomDecider(3)
	if got := d.Decide(context.Background(), request(4, KindSpeech)); got.Speak == "" {
		t.Error("speech turn produced no speech")
	}
}
