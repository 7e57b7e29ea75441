package calibration

import "testing"

func TestBucketFor(t *testing.T) {
	cases := []struct {
		rating int
		want   RatingBucket
	}{
		{900, Bucket800to1200},
		{1200, Bucket800to1200},
		{1201, Bucket1201to1600},
		{1600, Bucket1201to1600},
		{1601, Bucket1601to2000},
		{2000, Bucket1601to2000},
		{2001, Bucket2001Plus},
		{2600, Bucket2001Plus},
	}
	for _, c := range cases {
		if got := bucketFor(c.rating); got != c.want {
			t.Errorf("bucketFor(%d) = %v, want %v", c.rating, got, c.want)
		}
	}
}

func TestPercentileMatchesMedianOnOddLength(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	if got := percentile(sorted, 50); got != 3 {
		t.Fatalf("p50 = %v, want 3", got)
	}
}

func TestPercentileBoundaries(t *testing.T) {
	sorted := []float64{10, 20, 30}
	if got := percentile(sorted, 0); got != 10 {
		t.Fatalf("p0 = %v", got)
	}
	if got := percentile(sorted, 100); got != 30 {
		t.Fatalf("p100 = %v", got)
	}
}

func TestPercentileEmptyIsZero(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
}

func TestComputeThresholdsOneBucketPerRating(t *testing.T) {
	byBucket := map[RatingBucket][]float64{
		Bucket800to1200: {0, 10, 20, 30, 40},
	}
	th := ComputeThresholds(byBucket)
	got, ok := th[Bucket800to1200]
	if !ok {
		t.Fatal("expected thresholds for Bucket800to1200")
	}
	if got.P50 != 20 {
		t.Fatalf("p50 = %v, want 20", got.P50)
	}
}
