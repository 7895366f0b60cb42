package vault

// cache is the offline-readable mirror of the remote store, keyed
// site -> credential id -> credential. It is rebuilt wholesale on a
// successful sync and only ever mutated under the vault's lock.
type cache struct {
	sites map[string]map[string]Credential
}

func newCache() *cache {
	return &cache{sites: make(map[string]map[string]Credential)}
}

func (c *cache) rebuild(creds []Credential) {
	c.sites = make(map[string]map[string]Credential, len(creds))
	for _, cred := range creds {
		c.put(cred)
	}
}

func (c *cache) put(cred Credential) {
	bucket, ok := c.sites[cred.Site]
	if !ok {
		bucket = make(map[string]Credential)
		c.sites[cred.Site] = bucket
	}
	bucket[cred.ID] = cred
}

func (c *cache) get(site, id string) (Credential, bool) {
	bucket, ok := c.sites[site]
	if !ok {
		return Credential{}, false
	}
	cred, ok := bucket[id]
	return cred, ok
}

func (c *cache) bySite(site string) []Credential {
	bucket := c.sites[site]
	out := make([]Credential, 0, len(bucket))
	for _, cred := range bucket {
		out = append(out, cred)
	}
	return out
}

// remove deletes one entry. An absent site bucket is reported as a miss,
// never fabricated.
func (c *cache) remove(site, id string) bool {
	bucket, ok := c.sites[site]
	if !ok {
		return false
	}
	if _, ok := bucket[id]; !ok {
		return false
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(c.sites, site)
	}
	return true
}
