package repository

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// LotSearchQuery defines filters & pagination for searching active lots.
// When Near is set, results are limited to RadiusKm around it and ordered
// by distance; otherwise they are ordered by name.
type LotSearchQuery struct {
	Text        string
	City        string
	VehicleType model.VehicleType
	Near        *GeoPoint
	RadiusKm    float64
	Page        int
	PageSize    int
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// LotHit is a search result with its distance from the query point (zero
// when the query had none).
type LotHit struct {
	Lot        *model.ParkingLot
	DistanceKm float64
}

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.32
	maxGeoScan    = 1000
)

// Search returns one page of active lots matching q and the total number of
// matches.
func (r *LotRepo) Search(ctx context.Context, q LotSearchQuery) ([]LotHit, int64, error) {
	where := []string{"is_active = ?"}
	args := []any{true}

	if q.Text != "" {
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(address) LIKE ?)")
		like := "%" + strings.ToLower(q.Text) + "%"
		args = append(args, like, like)
	}
	if q.City != "" {
		where = append(where, "LOWER(city) = ?")
		args = append(args, strings.ToLower(q.City))
	}
	if q.VehicleType != "" {
		where = append(where, "(vehicle_types = '' OR vehicle_types LIKE ?)")
		args = append(args, "%,"+string(q.VehicleType)+",%")
	}
	if q.Near != nil {
		// bounding box prefilter; exact radius is applied below
		dLat := q.RadiusKm / kmPerDegree
		dLng := q.RadiusKm / (kmPerDegree * math.Max(math.Cos(q.Near.Lat*math.Pi/180), 0.01))
		where = append(where, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, q.Near.Lat-dLat, q.Near.Lat+dLat, q.Near.Lng-dLng, q.Near.Lng+dLng)
	}
	cond := strings.Join(where, " AND ")

	if q.Near != nil {
		return r.searchNear(ctx, q, cond, args)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parking_lots WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+lotColumns+" FROM parking_lots WHERE "+cond+" ORDER BY name ASC, id ASC LIMIT ? OFFSET ?",
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]LotHit, 0, q.PageSize)
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, LotHit{Lot: l})
	}
	return out, total, rows.Err()
}

func (r *LotRepo) searchNear(ctx context.Context, q LotSearchQuery, cond string, args []any) ([]LotHit, int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+lotColumns+" FROM parking_lots WHERE "+cond+" LIMIT ?",
		append(args, maxGeoScan)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hits []LotHit
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, 0, err
		}
		d := HaversineKm(*q.Near, GeoPoint{Lat: l.Latitude, Lng: l.Longitude})
		if d <= q.RadiusKm {
			hits = append(hits, LotHit{Lot: l, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].DistanceKm < hits[j].DistanceKm })

	total := int64(len(hits))
	start := (q.Page - 1) * q.PageSize
	if start >= len(hits) {
		return []LotHit{}, total, nil
	}
	end := start + q.PageSize
	if end > len(hits) {
		end = len(hits)
	}
	return hits[start:end], total, nil
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b GeoPoint) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
