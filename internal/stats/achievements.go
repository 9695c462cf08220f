package stats

// Achievement describes one grantable badge.
type Achievement struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Points      int
}

// Count-based rules fire when the counter lands exactly on the threshold,
// so each rule fires once per account: a counter only passes each value one
// time, one event at a time.
var bidCountRules = []struct {
	Threshold int
	Achievement
}{
	{1, Achievement{ID: "first-bid", Name: "First Bid", Description: "Placed your first bid", Icon: "badge-gavel", Points: 10}},
	{10, Achievement{ID: "bid-10", Name: "Active Bidder", Description: "Placed 10 bids", Icon: "badge-gavel-bronze", Points: 25}},
	{50, Achievement{ID: "bid-50", Name: "Serial Bidder", Description: "Placed 50 bids", Icon: "badge-gavel-silver", Points: 75}},
	{100, Achievement{ID: "bid-100", Name: "Bidding Machine", Description: "Placed 100 bids", Icon: "badge-gavel-gold", Points: 150}},
}

var winCountRules = []struct {
	Threshold int
	Achievement
}{
	{1, Achievement{ID: "first-win", Name: "First Win", Description: "Won your first auction", Icon: "badge-trophy", Points: 50}},
	{10, Achievement{ID: "win-10", Name: "Auction Master", Description: "Won 10 auctions", Icon: "badge-trophy-gold", Points: 250}},
}

// Spend rules use a crossing check instead of equality: monetary totals
// jump in arbitrary increments and may never land on the threshold exactly.
var spendRules = []struct {
	Threshold float64
	Achievement
}{
	{1000, Achievement{ID: "spend-1k", Name: "Big Spender", Description: "Spent $1,000 on won auctions", Icon: "badge-coins", Points: 100}},
	{10000, Achievement{ID: "spend-10k", Name: "High Roller", Description: "Spent $10,000 on won auctions", Icon: "badge-coins-gold", Points: 500}},
}

// bidAchievements returns rules newly satisfied by the current bid count.
func bidAchievements(totalBids int) []Achievement {
	var out []Achievement
	for _, rule := range bidCountRules {
		if totalBids == rule.Threshold {
			out = append(out, rule.Achievement)
		}
	}
	return out
}

// winAchievements returns rules newly satisfied by the current win count
// and by the spend total crossing a threshold with this win.
func winAchievements(auctionsWon int, prevSpent, totalSpent float64) []Achievement {
	var out []Achievement
	for _, rule := range winCountRules {
		if auctionsWon == rule.Threshold {
			out = append(out, rule.Achievement)
		}
	}
	for _, rule := range spendRules {
		if prevSpent < rule.Threshold && totalSpent >= rule.Threshold {
			out = append(out, rule.Achievement)
		}
	}
	return out
}
