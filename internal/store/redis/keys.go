package redis

const (
	// KeyPrefix namespaces every pulse key and channel.
	KeyPrefix = "pulse:"
	// ChannelInvalidate carries customer invalidations between replicas.
	ChannelInvalidate = KeyPrefix + "invalidate"
	// KeyPrefixMutation prefixes the per-customer last-mutation markers.
	KeyPrefixMutation = KeyPrefix + "mutation:"
)

// MutationKey returns the key holding the last mutation time of a customer.
func MutationKey(customerID string) string {
	return KeyPrefixMutation + customerID
}
