package returns

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-lending-service/internal/model"
)

var damagePercentage = map[model.ReturnCondition]decimal.Decimal{
	model.ConditionGood:           decimal.Zero,
	model.ConditionMinorDamage:    decimal.RequireFromString("0.15"),
	model.ConditionModerateDamage: decimal.RequireFromString("0.40"),
	model.ConditionSevereDamage:   decimal.RequireFromString("0.70"),
	model.ConditionLost:           decimal.NewFromInt(1),
}

// DamagePercentage returns the share of the item value charged for a
// condition. Unknown conditions charge nothing.
func DamagePercentage(c model.ReturnCondition) decimal.Decimal {
	if p, ok := damagePercentage[c]; ok {
		return p
	}
	return decimal.Zero
}

// Policy holds the late charges. A late return pays FlatLateFee once plus
// LateFeePerDay for every calendar day past the deadline.
type Policy struct {
	LateFeePerDay decimal.Decimal
	FlatLateFee   decimal.Decimal
}

type Fine struct {
	LateDays  int
	LateFee   decimal.Decimal
	DamageFee decimal.Decimal
	TotalFee  decimal.Decimal
}

// Calculator computes fines on the server. It holds no state besides the
// policy, so the same inputs always give the same Fine.
type Calculator struct {
	Policy Policy
}

func NewCalculator(p Policy) Calculator {
	return Calculator{Policy: p}
}

func (c Calculator) ComputeFine(equipment model.Equipment, loan model.Loan, condition model.ReturnCondition, returnedAt time.Time) Fine {
	f := Fine{
		LateFee:   decimal.Zero,
		DamageFee: equipment.ItemValue.Mul(DamagePercentage(condition)),
	}

	if days := model.DaysBetween(loan.Deadline, returnedAt); days > 0 {
		f.LateDays = days
		f.LateFee = c.Policy.FlatLateFee.Add(c.Policy.LateFeePerDay.Mul(decimal.NewFromInt(int64(days))))
	}

	f.TotalFee = f.LateFee.Add(f.DamageFee)
	return f
}
