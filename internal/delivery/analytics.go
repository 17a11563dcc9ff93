package delivery

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/notification-agent/internal/domain"
)

// DayFormat is the layout of DayCounts.Day.
const DayFormat = "2006-01-02"

// DayCounts holds cumulative status counts for one channel on one UTC day,
// bucketed by record creation time. A record that reached OPENED also
// counts as sent and delivered.
type DayCounts struct {
	Channel   domain.Channel `json:"channel"`
	Day       string         `json:"day"`
	Total     int            `json:"total"`
	Sent      int            `json:"sent"`
	Delivered int            `json:"delivered"`
	Opened    int            `json:"opened"`
	Clicked   int            `json:"clicked"`
	Failed    int            `json:"failed"`
	Bounced   int            `json:"bounced"`
}

func (c *DayCounts) add(o DayCounts) {
	c.Total += o.Total
	c.Sent += o.Sent
	c.Delivered += o.Delivered
	c.Opened += o.Opened
	c.Clicked += o.Clicked
	c.Failed += o.Failed
	c.Bounced += o.Bounced
}

// Rates are fractions in [0,1].
type Rates struct {
	DayCounts
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// Aggregate projects records into day counts, ordered by day then channel.
func Aggregate(records []domain.DeliveryRecord) []DayCounts {
	type key struct {
		ch  domain.Channel
		day string
	}
	buckets := make(map[key]*DayCounts)
	for i := range records {
		r := &records[i]
		k := key{r.Channel, r.CreatedAt.UTC().Format(DayFormat)}
		c, ok := buckets[k]
		if !ok {
			c = &DayCounts{Channel: k.ch, Day: k.day}
			buckets[k] = c
		}
		c.Total++
		if r.SentAt != nil {
			c.Sent++
		}
		if r.DeliveredAt != nil {
			c.Delivered++
		}
		if r.OpenedAt != nil {
			c.Opened++
		}
		if r.ClickedAt != nil {
			c.Clicked++
		}
		switch r.Status {
		case domain.StatusFailed:
			c.Failed++
		case domain.StatusBounced:
			c.Bounced++
		}
	}

	out := make([]DayCounts, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// RatesFromCounts computes rates for each bucket. A zero denominator gives 0.
func RatesFromCounts(counts []DayCounts) []Rates {
	out := make([]Rates, 0, len(counts))
	for _, c := range counts {
		out = append(out, ratesOf(c))
	}
	return out
}

func ratesOf(c DayCounts) Rates {
	return Rates{
		DayCounts:    c,
		DeliveryRate: ratio(c.Delivered, c.Sent),
		OpenRate:     ratio(c.Opened, c.Delivered),
		ClickRate:    ratio(c.Clicked, c.Opened),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ChannelSummary is the dashboard view of one channel: totals plus rates
// as percentages rounded to two decimals.
type ChannelSummary struct {
	Channel      domain.Channel `json:"channel,omitempty"`
	Total        int            `json:"total"`
	Sent         int            `json:"sent"`
	Delivered    int            `json:"delivered"`
	Opened       int            `json:"opened"`
	Clicked      int            `json:"clicked"`
	Failed       int            `json:"failed"`
	Bounced      int            `json:"bounced"`
	DeliveryRate float64        `json:"delivery_rate"`
	OpenRate     float64        `json:"open_rate"`
	ClickRate    float64        `json:"click_rate"`
	FailureRate  float64        `json:"failure_rate"`
}

// Summary totals day counts across the window.
type Summary struct {
	Overall   ChannelSummary   `json:"overall"`
	ByChannel []ChannelSummary `json:"by_channel"`
}

// Summarize folds day counts into per-channel and overall summaries.
// Channels are listed in domain.AllChannels order, skipping empty ones.
func Summarize(counts []DayCounts) Summary {
	per := make(map[domain.Channel]*DayCounts)
	var all DayCounts
	for _, c := range counts {
		p, ok := per[c.Channel]
		if !ok {
			p = &DayCounts{Channel: c.Channel}
			per[c.Channel] = p
		}
		p.add(c)
		all.add(c)
	}

	s := Summary{Overall: summaryOf(all), ByChannel: []ChannelSummary{}}
	for _, ch := range domain.AllChannels() {
		if p, ok := per[ch]; ok {
			s.ByChannel = append(s.ByChannel, summaryOf(*p))
		}
	}
	return s
}

func summaryOf(c DayCounts) ChannelSummary {
	r := ratesOf(c)
	return ChannelSummary{
		Channel:      c.Channel,
		Total:        c.Total,
		Sent:         c.Sent,
		Delivered:    c.Delivered,
		Opened:       c.Opened,
		Clicked:      c.Clicked,
		Failed:       c.Failed,
		Bounced:      c.Bounced,
		DeliveryRate: percent(r.DeliveryRate),
		OpenRate:     percent(r.OpenRate),
		ClickRate:    percent(r.ClickRate),
		FailureRate:  percent(ratio(c.Failed+c.Bounced, c.Total)),
	}
}

func percent(f float64) float64 {
	return math.Round(f*10000) / 100
}

// DayRange returns the UTC day bounds [start, end) containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
