package application

import "strings"

// AddAccountCommand is the raw form input for a new account.
type AddAccountCommand struct {
	Name      string `json:"name" validate:"required"`
	Price     string `json:"price" validate:"required,price"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

func (c AddAccountCommand) normalized() AddAccountCommand {
	return AddAccountCommand{
		Name:      strings.TrimSpace(c.Name),
		Price:     strings.TrimSpace(c.Price),
		StartDate: strings.TrimSpace(c.StartDate),
	}
}
