package fpl

type bootstrapResponse struct {
	TotalPlayers int         `json:"total_players" validate:"gte=0"`
	Events       []eventItem `json:"events" validate:"required,dive"`
}

type eventItem struct {
	ID        int  `json:"id" validate:"gt=0"`
	IsCurrent bool `json:"is_current"`
	IsNext    bool `json:"is_next"`
}

type entryPicksResponse struct {
	Picks []pickItem `json:"picks" validate:"required,dive"`
}

type pickItem struct {
	Element       int  `json:"element" validate:"gt=0"`
	Position      int  `json:"position" validate:"gte=1"`
	Multiplier    int  `json:"multiplier" validate:"gte=0"`
	IsCaptain     bool `json:"is_captain"`
	IsViceCaptain bool `json:"is_vice_captain"`
}
