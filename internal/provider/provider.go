// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package provider defines the source of raw isochrone tracks.
package provider

import (
	"context"

	"github.com/mlnoga/isogrid/internal/track"
)

// A source of raw isochrone tracks, queried by (log-age, metallicity) pair.
// Implementations must tolerate concurrent calls if the builder runs with
// more than one worker.
type Provider interface {
	FetchTrack(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error)
}

// Adapter to use an ordinary function as a Provider
type Func func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error)

func (f Func) FetchTrack(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
	return f(ctx, logAge, feh, photSys)
}
