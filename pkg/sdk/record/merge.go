package record

// MergeError layers override on top of base field by field. A non-null
// override field always wins; a null one keeps the base value. Tags are
// concatenated base first with duplicates removed.
func MergeError(base, override ErrorRecord) ErrorRecord {
	out := base

	str(&out.ID, override.ID)
	str(&out.ClientID, override.ClientID)
	if override.ErrorType != "" {
		out.ErrorType = override.ErrorType
	}
	if override.Severity != "" {
		out.Severity = override.Severity
	}
	str(&out.ErrorCode, override.ErrorCode)
	str(&out.ErrorName, override.ErrorName)
	str(&out.Message, override.Message)
	str(&out.StackTrace, override.StackTrace)
	str(&out.Source, override.Source)
	str(&out.Environment, override.Environment)

	str(&out.UserAgent, override.UserAgent)
	str(&out.BrowserName, override.BrowserName)
	str(&out.BrowserVersion, override.BrowserVersion)
	str(&out.OSName, override.OSName)
	str(&out.OSVersion, override.OSVersion)
	str(&out.DeviceType, override.DeviceType)
	ptr(&out.ViewportWidth, override.ViewportWidth)
	ptr(&out.ViewportHeight, override.ViewportHeight)

	str(&out.ConnectionType, override.ConnectionType)
	str(&out.ConnectionEffectiveType, override.ConnectionEffectiveType)
	ptr(&out.ConnectionDownlink, override.ConnectionDownlink)
	ptr(&out.ConnectionRTT, override.ConnectionRTT)
	ptr(&out.DeviceMemory, override.DeviceMemory)
	ptr(&out.DeviceCPUCores, override.DeviceCPUCores)

	str(&out.URL, override.URL)
	str(&out.PageTitle, override.PageTitle)
	str(&out.Referrer, override.Referrer)

	str(&out.ServerName, override.ServerName)
	str(&out.ServiceName, override.ServiceName)
	str(&out.ServiceVersion, override.ServiceVersion)
	str(&out.Endpoint, override.Endpoint)
	str(&out.HTTPMethod, override.HTTPMethod)
	ptr(&out.HTTPStatusCode, override.HTTPStatusCode)
	str(&out.RequestID, override.RequestID)

	str(&out.UserID, override.UserID)
	str(&out.SessionID, override.SessionID)

	str(&out.IPAddress, override.IPAddress)
	str(&out.Country, override.Country)
	str(&out.Region, override.Region)
	str(&out.City, override.City)
	str(&out.Org, override.Org)
	str(&out.Postal, override.Postal)
	str(&out.Loc, override.Loc)

	ptr(&out.ResponseTimeMs, override.ResponseTimeMs)
	ptr(&out.MemoryUsageMB, override.MemoryUsageMB)
	ptr(&out.CPUUsagePercent, override.CPUUsagePercent)

	if !override.FirstOccurrence.IsZero() {
		out.FirstOccurrence = override.FirstOccurrence
	}
	if !override.LastOccurrence.IsZero() {
		out.LastOccurrence = override.LastOccurrence
	}
	if override.OccurrenceCount != 0 {
		out.OccurrenceCount = override.OccurrenceCount
	}
	if override.Status != "" {
		out.Status = override.Status
	}
	ptr(&out.ResolvedAt, override.ResolvedAt)
	str(&out.ResolvedBy, override.ResolvedBy)
	str(&out.ResolutionNotes, override.ResolutionNotes)

	str(&out.CustomData, override.CustomData)
	out.Tags = MergeTags(base.Tags, override.Tags)

	if !override.CreatedAt.IsZero() {
		out.CreatedAt = override.CreatedAt
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	return out
}

// MergeTags concatenates tag lists in order, dropping empty and repeated tags.
func MergeTags(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func str(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func ptr[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}
