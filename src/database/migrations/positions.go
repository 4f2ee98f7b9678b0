package migrations

import "gorm.io/gorm"

// backfillRemainingAmount materialises the never-sold remaining amount of legacy rows.
func backfillRemainingAmount(db *gorm.DB) error {
	return db.Exec(`UPDATE positions SET remaining_amount = purchase_amount WHERE remaining_amount IS NULL`).Error
}

// raiseTakeProfitCeiling repairs rows whose take-profit ceiling fell behind the hit count.
func raiseTakeProfitCeiling(db *gorm.DB) error {
	return db.Exec(`UPDATE positions SET total_take_profit_levels = take_profit_levels_hit WHERE total_take_profit_levels < take_profit_levels_hit`).Error
}
