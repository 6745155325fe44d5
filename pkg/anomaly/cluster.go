package anomaly

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/detectors"
	"github.com/hed1ad/custguard/pkg/detectors/kmeans"
	"github.com/hed1ad/custguard/pkg/models"
	"github.com/hed1ad/custguard/pkg/preprocess"
)

var clusterLog = logrus.WithField("component", "anomaly.Clusterer")

// ClusterMember assigns a customer to an anomaly group.
type ClusterMember struct {
	CustomerID string `json:"customer_id" yaml:"customer_id"`
	Group      string `json:"group" yaml:"group"`
}

// Centroid is the mean profile of a group in original units.
type Centroid struct {
	Group     string  `json:"group" yaml:"group"`
	Size      int     `json:"size" yaml:"size"`
	Recency   float64 `json:"recency" yaml:"recency"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Monetary  float64 `json:"monetary" yaml:"monetary"`
}

// ClusterResult is the (members, centroids) pair produced by Clusterer.
// Centroids is empty and Insufficient is set when there were fewer
// anomalous customers, or fewer distinct profiles, than requested groups.
type ClusterResult struct {
	Members      []ClusterMember   `json:"members" yaml:"members"`
	Centroids    []Centroid        `json:"centroids" yaml:"centroids"`
	Insufficient *InsufficientData `json:"insufficient,omitempty" yaml:"insufficient,omitempty"`
}

// Clusterer groups already flagged customers by their standardized RFM profile.
type Clusterer struct {
	seed int64
}

// ClusterOption configures a Clusterer.
type ClusterOption func(*Clusterer)

// WithClusterSeed sets the k-means random seed.
func WithClusterSeed(seed int64) ClusterOption {
	return func(c *Clusterer) {
		c.seed = seed
	}
}

// NewClusterer creates a Clusterer with seed 42.
func NewClusterer(opts ...ClusterOption) *Clusterer {
	c := &Clusterer{seed: detectors.DefaultConfig().RandomSeed}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Group partitions rows, normally ProfileResult.Anomalous(), into k groups.
// Groups are named "Anomaly Group 1".."Anomaly Group k" by descending
// Monetary centroid.
func (c *Clusterer) Group(rows []ProfileRow, k int) (*ClusterResult, error) {
	if k <= 0 {
		return nil, &ConfigError{Param: "cluster count", Value: k, Range: "[1, inf)"}
	}
	if len(rows) < k {
		return insufficientGroups(len(rows), k), nil
	}

	profiles := make([]models.Profile, len(rows))
	for i, r := range rows {
		profiles[i] = r.Profile
	}
	matrix, err := featureMatrix(profiles, models.RFMFeatures)
	if err != nil {
		return nil, err
	}
	// coinciding profiles would leave groups empty
	if distinct := kmeans.Distinct(matrix); distinct < k {
		return insufficientGroups(distinct, k), nil
	}
	scaler, scaled, err := preprocess.FitTransform(matrix)
	if err != nil {
		return nil, err
	}

	km := kmeans.New(k, kmeans.WithSeed(c.seed))
	labels, err := km.FitPredict(scaled)
	if err != nil {
		return nil, err
	}
	centers := scaler.InverseTransform(km.Centroids())

	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	// rank clusters by Monetary so names are stable across runs
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return centers[order[i]][2] > centers[order[j]][2] })
	names := make([]string, k)
	result := &ClusterResult{
		Members:   make([]ClusterMember, len(rows)),
		Centroids: make([]Centroid, 0, k),
	}
	for rank, idx := range order {
		names[idx] = fmt.Sprintf("Anomaly Group %d", rank+1)
		result.Centroids = append(result.Centroids, Centroid{
			Group:     names[idx],
			Size:      sizes[idx],
			Recency:   centers[idx][0],
			Frequency: centers[idx][1],
			Monetary:  centers[idx][2],
		})
	}
	for i, r := range rows {
		result.Members[i] = ClusterMember{CustomerID: r.CustomerID, Group: names[labels[i]]}
	}

	clusterLog.WithFields(logrus.Fields{"rows": len(rows), "k": k}).Debug("anomalies grouped")
	return result, nil
}

func insufficientGroups(have, k int) *ClusterResult {
	clusterLog.WithFields(logrus.Fields{"have": have, "k": k}).Debug("not enough anomalies to group")
	return &ClusterResult{
		Members:      []ClusterMember{},
		Centroids:    []Centroid{},
		Insufficient: &InsufficientData{Operation: "cluster", Have: have, Need: k},
	}
}

// MembersOf returns the customer ids assigned to group.
func (r *ClusterResult) MembersOf(group string) []string {
	var ids []string
	for _, m := range r.Members {
		if m.Group == group {
			ids = append(ids, m.CustomerID)
		}
	}
	return ids
}
