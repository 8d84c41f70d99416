// Package cgd describes the CSV exports of Caixa Geral de Depósitos.
//
// The bank ships three layouts, all semicolon separated with day-first dates, decimal commas and
// a metadata preamble above the header:
//
//	conta   "Data mov." "Descrição" "Montante"
//	extrato "Data mov." "Descrição" "Movimento"
//	cartão  "Data" "Descrição" "Débito" "Crédito"
//
// One profile covers all three; header detection picks whichever amount columns are present.
package cgd

import (
	"github.com/MrJamesThe3rd/tally/internal/columns"
	"github.com/MrJamesThe3rd/tally/internal/profile"
)

const Name = "cgd"

func Profile() profile.Profile {
	return profile.Profile{
		Name:         Name,
		DateFormat:   "DD-MM-YYYY",
		DecimalComma: true,
		Delimiter:    ";",
		DebitLabels:  []string{"débito", "debito", "d"},
		CreditLabels: []string{"crédito", "credito", "c"},
		Headers: map[columns.Role][]string{
			// "data mov." before "data" so the movement date beats the value date.
			columns.RoleDate:           {"data mov.", "data"},
			columns.RoleDescription:    {"descrição", "descricao"},
			columns.RoleAmount:         {"montante", "movimento"},
			columns.RoleDebit:          {"débito", "debito"},
			columns.RoleCredit:         {"crédito", "credito"},
			columns.RoleSourceCategory: {"categoria"},
		},
	}
}
