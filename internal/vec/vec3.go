package vec

import "math"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется и для мировых позиций блоков, и для координат чанков.
type Vec3 struct {
	X int
	Y int
	Z int
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// Splat возвращает вектор с одинаковыми компонентами
func Splat(v int) Vec3 {
	return Vec3{X: v, Y: v, Z: v}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает все компоненты на скаляр
func (v Vec3) Scale(s int) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// FloorDiv делит каждую компоненту на n с округлением вниз (-1/32 == -1)
func (v Vec3) FloorDiv(n int) Vec3 {
	return Vec3{X: FloorDiv(v.X, n), Y: FloorDiv(v.Y, n), Z: FloorDiv(v.Z, n)}
}

// FloorMod возвращает неотрицательный остаток по каждой компоненте
func (v Vec3) FloorMod(n int) Vec3 {
	return Vec3{X: FloorMod(v.X, n), Y: FloorMod(v.Y, n), Z: FloorMod(v.Z, n)}
}

// ToFloat преобразует вектор в Vec3Float
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// DistanceTo возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Floor округляет каждую компоненту вниз до целого
func (v Vec3Float) Floor() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// FloorDiv целочисленное деление с округлением к минус бесконечности
func FloorDiv(a, n int) int {
	q := a / n
	if (a%n != 0) && ((a < 0) != (n < 0)) {
		q--
	}
	return q
}

// FloorMod остаток, согласованный с FloorDiv: a == FloorDiv(a,n)*n + FloorMod(a,n)
func FloorMod(a, n int) int {
	m := a % n
	if m != 0 && ((m < 0) != (n < 0)) {
		m += n
	}
	return m
}
