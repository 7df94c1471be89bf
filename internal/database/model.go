package database

import (
	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
)

type Tournament struct {
	Info tournament.Info `gorm:"embedded"`
	Data tournament.Data `gorm:"embedded"`
}

func (t Tournament) Full() tournament.FullData {
	return tournament.FullData{Info: t.Info, Data: t.Data}
}

type Match struct {
	Info match.Info `gorm:"embedded"`
	Data match.Data `gorm:"embedded"`
}

func (m Match) Full() match.FullData {
	return match.FullData{Info: m.Info, Data: m.Data}
}

var models = []any{
	&Tournament{},
	&tournament.RegionCounter{},
	&Match{},
	&queue.Task{},
	&scheduler.Timer{},
	&scheduler.CheckIn{},
	&apitoken.Token{},
}
