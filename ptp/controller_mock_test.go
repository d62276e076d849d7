/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ptp

import (
	"testing"

	gomock "go.uber.org/mock/gomock"
)

func TestTrackingControllerCoarseStepsPrimaryClock(t *testing.T) {
	ctrl := gomock.NewController(t)
	clk := NewMockTrackingClock(ctrl)
	clk.EXPECT().ClockRate(int64(0))
	clk.EXPECT().ClockAdjust(int64(5_000_000)).Return(int64(0))

	tc := NewTrackingController(clk)
	tc.Reset(false)
	tc.Update(5_000_000, 1_000_000)

	if tc.State() != StateAcquire {
		t.Errorf("expected StateAcquire after a coarse step, got %v", tc.State())
	}
}

func TestTrackingControllerFineUpdatesSetRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	clk := NewMockTrackingClock(ctrl)
	clk.EXPECT().ClockRate(int64(0))
	clk.EXPECT().ClockRate(gomock.Any())

	tc := NewTrackingController(clk)
	tc.Reset(false)
	tc.Update(100, 1_000_000)

	if tc.State() != StateAcquire {
		t.Errorf("expected StateAcquire after the first fine update, got %v", tc.State())
	}
}
