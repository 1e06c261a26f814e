package domain

// ManifestSummary holds the permission fields extracted from an extension manifest.
// Both lists have set semantics and are deduplicated in declared order.
type ManifestSummary struct {
	Name            string   `json:"name,omitempty"`
	Version         string   `json:"version,omitempty"`
	ManifestVersion int      `json:"manifest_version,omitempty"`
	Permissions     []string `json:"permissions"`
	HostPermissions []string `json:"host_permissions"`
}

// PermissionEvaluation is the outcome of checking declared permissions against the dangerous set.
type PermissionEvaluation struct {
	DangerousCount int      `json:"dangerous_count"`
	Dangerous      []string `json:"dangerous"`
	Elevated       bool     `json:"elevated"`
	BroadHosts     []string `json:"broad_hosts,omitempty"`
	Excessive      bool     `json:"excessive"`
	SensitiveData  bool     `json:"sensitive_data"`
}
