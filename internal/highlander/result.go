package highlander

import "sort"

type Ranking struct {
	PlayerID         string  `json:"playerId"`
	PlayerName       string  `json:"playerName"`
	Rank             int     `json:"rank"`
	FinishTime       float64 `json:"finishTime"`
	DistanceTraveled float64 `json:"distanceTraveled"`
}

type ResultStats struct {
	TotalPlayers         int     `json:"totalPlayers"`
	FinishedPlayers      int     `json:"finishedPlayers"`
	GameDuration         float64 `json:"gameDuration"`
	ShortestPathDistance float64 `json:"shortestPathDistance"`
}

type GameResult struct {
	GameID   string      `json:"gameId"`
	Rankings []Ranking   `json:"rankings"`
	Stats    ResultStats `json:"stats"`
}

// BuildResult summarises a finished game. traveled maps player id to meters
// walked; shortest is the routed origin-to-goal distance.
func BuildResult(g *Game, traveled map[string]float64, shortest float64) GameResult {
	rankings := []Ranking{}
	for _, p := range g.Players {
		if p.Rank == 0 {
			continue
		}
		r := Ranking{
			PlayerID:         p.ID,
			PlayerName:       p.Username,
			Rank:             p.Rank,
			DistanceTraveled: traveled[p.ID],
		}
		if p.FinishedAt != nil {
			r.FinishTime = g.Elapsed(*p.FinishedAt)
		}
		rankings = append(rankings, r)
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].Rank < rankings[j].Rank })

	var duration float64
	if g.FinishedAt != nil {
		duration = g.Elapsed(*g.FinishedAt)
	}

	return GameResult{
		GameID:   g.ID,
		Rankings: rankings,
		Stats: ResultStats{
			TotalPlayers:         len(g.Players),
			FinishedPlayers:      len(rankings),
			GameDuration:         duration,
			ShortestPathDistance: shortest,
		},
	}
}
